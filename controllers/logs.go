package controllers

import (
	"fmt"
	"io"
	"strings"

	"danceportal_go/services"
	"danceportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

// LogController serves activity logs and stored archives to staff.
type LogController struct {
	archiver *services.LogArchiveService
}

func NewLogController(archiver *services.LogArchiveService) *LogController {
	return &LogController{archiver: archiver}
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	f := services.LogFilter{
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", 50),
	}
	if v := c.Query("user_id"); v != "" {
		id, err := utils.ParseUint(v)
		if err != nil {
			return respondError(c, invalidRequest("invalid user_id"))
		}
		f.UserID = id
	}
	var err error
	if f.From, err = queryDate(c, "date_from"); err != nil {
		return respondError(c, err)
	}
	if f.To, err = queryDate(c, "date_to"); err != nil {
		return respondError(c, err)
	}
	if f.To != nil {
		// inclusive end date
		end := f.To.AddDate(0, 0, 1)
		f.To = &end
	}

	page, err := lc.archiver.ListLogs(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"logs": page.Items,
		"meta": utils.NewPageMeta(page.Page, page.Limit, page.Total),
	})
}

// FlushCachedLogs moves queued logs from Redis into the database now.
func (lc *LogController) FlushCachedLogs(c *fiber.Ctx) error {
	n, err := lc.archiver.FlushCachedLogsToDatabase(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"flushed": n})
}

// ArchiveLogs archives logs older than ?days (default 30).
func (lc *LogController) ArchiveLogs(c *fiber.Ctx) error {
	days := queryInt(c, "days", 30)
	record, err := lc.archiver.ArchiveOldLogs(c.UserContext(), days)
	if err != nil {
		return respondError(c, err)
	}
	if record == nil {
		return c.JSON(fiber.Map{"message": "No logs old enough to archive"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"archive": record})
}

// GetArchives lists archive records, narrowed with ?kind=activity_logs|statement.
func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archiver.GetArchives(c.UserContext(), c.Query("kind"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"archives": archives})
}

// DownloadArchive streams a stored archive object.
func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	rc, record, err := lc.archiver.OpenArchive(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return respondError(c, fmt.Errorf("read archive %d: %w", id, err))
	}
	return sendFile(c, record.FileName, contentTypeFor(record.FileName), content)
}

func contentTypeFor(fileName string) string {
	switch {
	case strings.HasSuffix(fileName, ".zip"):
		return "application/zip"
	case strings.HasSuffix(fileName, ".xlsx"):
		return services.XLSXContentType
	}
	return fiber.MIMEOctetStream
}
