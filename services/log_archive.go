package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"danceportal_go/models"
	"danceportal_go/storage"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Keys shared with middleware.LogActivity.
const (
	LogQueueKey     = "logs:queue"
	flushBatchSize  = 500
	archiveBatch    = 1000
	minArchiveDays  = 7
	archiveLogsKind = "logs"
)

// ErrArchiveNotConfigured is returned when no object store is wired.
var ErrArchiveNotConfigured = errors.New("archive storage not configured")

// LogArchiveService flushes queued activity logs to the database and moves
// old logs into zip archives in object storage.
type LogArchiveService struct {
	db          *gorm.DB
	redisClient *redis.Client
	store       storage.ObjectStore
	prefix      string
	now         func() time.Time
}

// ArchivedLog is the exported representation stored inside archives
type ArchivedLog struct {
	ID         uint           `json:"id"`
	UserID     uint           `json:"user_id"`
	Username   string         `json:"username,omitempty"`
	UserRole   string         `json:"user_role,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID uint           `json:"resource_id"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewLogArchiveService wires the archive service. redisClient and store may be nil.
func NewLogArchiveService(db *gorm.DB, redisClient *redis.Client, store storage.ObjectStore, prefix string) *LogArchiveService {
	return &LogArchiveService{
		db:          db,
		redisClient: redisClient,
		store:       store,
		prefix:      prefix,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// FlushCachedLogsToDatabase moves every queued log from Redis into the
// activity_logs table and returns how many rows were written.
func (las *LogArchiveService) FlushCachedLogsToDatabase(ctx context.Context) (int, error) {
	if las.redisClient == nil {
		return 0, fmt.Errorf("redis client not available")
	}

	keys, err := las.redisClient.ZRangeByScore(ctx, LogQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(las.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read log queue: %w", err)
	}

	flushed := 0
	for start := 0; start < len(keys); start += flushBatchSize {
		end := start + flushBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		n, err := las.flushBatch(ctx, keys[start:end])
		flushed += n
		if err != nil {
			return flushed, err
		}
	}

	if len(keys) > 0 {
		logrus.WithFields(logrus.Fields{"queued": len(keys), "flushed": flushed}).Info("Flushed cached activity logs")
	}
	return flushed, nil
}

func (las *LogArchiveService) flushBatch(ctx context.Context, keys []string) (int, error) {
	values, err := las.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read cached logs: %w", err)
	}

	logs := make([]models.ActivityLog, 0, len(keys))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired before the flush; only the queue entry is left
			continue
		}
		var al models.ActivityLog
		if err := json.Unmarshal([]byte(raw), &al); err != nil {
			logrus.WithError(err).WithField("key", keys[i]).Warn("Dropping unreadable cached log")
			continue
		}
		al.ID = 0
		logs = append(logs, al)
	}

	if len(logs) > 0 {
		if err := las.db.WithContext(ctx).CreateInBatches(&logs, 100).Error; err != nil {
			return 0, fmt.Errorf("failed to save cached logs: %w", err)
		}
	}

	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe := las.redisClient.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, LogQueueKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to remove flushed logs from cache")
	}
	return len(logs), nil
}

// ArchiveOldLogs zips logs older than daysOld days, uploads the archive and
// removes the archived rows. It returns nil when nothing is old enough.
func (las *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) (*models.ArchiveRecord, error) {
	if daysOld < minArchiveDays {
		return nil, fmt.Errorf("minimum archive age is %d days", minArchiveDays)
	}
	if las.store == nil {
		return nil, ErrArchiveNotConfigured
	}

	cutoff := las.now().AddDate(0, 0, -daysOld)
	db := las.db.WithContext(ctx)

	var all []ArchivedLog
	var lastID uint
	users := map[uint]*models.User{}
	for {
		var batch []models.ActivityLog
		err := db.Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id").
			Limit(archiveBatch).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("failed to fetch logs for archiving: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, l := range batch {
			all = append(all, las.toArchived(db, l, users))
		}
		lastID = batch[len(batch)-1].ID
	}

	if len(all) == 0 {
		logrus.Info("No logs to archive")
		return nil, nil
	}

	fileName := fmt.Sprintf("activity_logs_%s.zip", cutoff.Format("2006-01-02"))
	buf, err := createZipArchive(all, fileName, las.now())
	if err != nil {
		return nil, fmt.Errorf("failed to create ZIP archive: %w", err)
	}

	key := storage.ObjectKey(las.prefix, archiveLogsKind, cutoff, fileName)
	record := &models.ArchiveRecord{
		Kind:        models.ArchiveActivityLogs,
		FileName:    fileName,
		ObjectKey:   key,
		StartDate:   all[0].CreatedAt,
		EndDate:     cutoff,
		RecordCount: len(all),
		FileSize:    int64(buf.Len()),
		Status:      "pending",
	}

	if err := las.store.Put(ctx, key, "application/zip", buf.Bytes()); err != nil {
		record.Status = "failed"
		record.Error = err.Error()
		if dbErr := db.Create(record).Error; dbErr != nil {
			logrus.WithError(dbErr).Error("Failed to save archive metadata")
		}
		return record, fmt.Errorf("failed to upload archive: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		done := las.now()
		record.Status = "completed"
		record.CompletedAt = &done
		return tx.Create(record).Error
	})
	if err != nil {
		return record, fmt.Errorf("failed to finish archive: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"object_key": key,
		"records":    len(all),
		"bytes":      record.FileSize,
	}).Info("Archived activity logs")
	return record, nil
}

func (las *LogArchiveService) toArchived(db *gorm.DB, l models.ActivityLog, users map[uint]*models.User) ArchivedLog {
	out := ArchivedLog{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if len(l.Details) > 0 {
		var details map[string]any
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	if l.UserID == 0 {
		return out
	}
	u, seen := users[l.UserID]
	if !seen {
		var user models.User
		if err := db.Unscoped().First(&user, l.UserID).Error; err == nil {
			u = &user
		}
		users[l.UserID] = u
	}
	if u != nil {
		out.Username = u.Username
		out.UserRole = u.Role
	}
	return out
}

// createZipArchive writes activity_logs.json, metadata.json and activity_logs.csv.
func createZipArchive(logs []ArchivedLog, fileName string, now time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	logsFile, err := zw.Create("activity_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(logsFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    now,
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, fmt.Errorf("failed to encode logs: %w", err)
	}

	metaFile, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(metaFile).Encode(map[string]any{
		"file_name":    fileName,
		"created_at":   now,
		"record_count": len(logs),
		"date_range": map[string]any{
			"start": logs[0].CreatedAt,
			"end":   logs[len(logs)-1].CreatedAt,
		},
		"schema_version": "1.0",
		"description":    "Dance Portal Activity Logs Archive",
	}); err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	csvFile, err := zw.Create("activity_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(csvFile)
	_ = w.Write([]string{"ID", "User ID", "Username", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		details := ""
		if l.Details != nil {
			if b, err := json.Marshal(l.Details); err == nil {
				details = string(b)
			}
		}
		_ = w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Username,
			l.UserRole,
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			details,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %w", err)
	}
	return buf, nil
}

// GetArchives lists archive records of a kind, newest first. Empty kind lists all.
func (las *LogArchiveService) GetArchives(ctx context.Context, kind string) ([]models.ArchiveRecord, error) {
	var archives []models.ArchiveRecord
	q := las.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve archives: %w", err)
	}
	return archives, nil
}

// OpenArchive streams a stored archive. The caller closes the reader.
func (las *LogArchiveService) OpenArchive(ctx context.Context, archiveID uint) (io.ReadCloser, *models.ArchiveRecord, error) {
	if las.store == nil {
		return nil, nil, ErrArchiveNotConfigured
	}
	var archive models.ArchiveRecord
	if err := las.db.WithContext(ctx).First(&archive, archiveID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: archive %d", ErrNotFound, archiveID)
		}
		return nil, nil, err
	}
	rc, err := las.store.Get(ctx, archive.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, &archive, nil
}

// LogFilter narrows ListLogs. Zero values match everything.
type LogFilter struct {
	UserID   uint
	Action   string
	Resource string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// LogPage is one page of activity logs, newest first.
type LogPage struct {
	Items []models.ActivityLog `json:"items"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
	Total int64                `json:"total"`
}

// ListLogs pages the persisted activity logs.
func (las *LogArchiveService) ListLogs(ctx context.Context, f LogFilter) (*LogPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}

	q := las.db.WithContext(ctx).Model(&models.ActivityLog{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Resource != "" {
		q = q.Where("resource = ?", f.Resource)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.ActivityLog
	err := q.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &LogPage{Items: items, Page: f.Page, Limit: f.Limit, Total: total}, nil
}
