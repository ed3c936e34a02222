package services

import (
	"context"
	"fmt"
	"time"

	"danceportal_go/models"
	"danceportal_go/services/billing"
	"danceportal_go/storage"
	"danceportal_go/utils"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportFile is a rendered workbook. ObjectKey is set once archived.
type ExportFile struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	ObjectKey   string `json:"object_key,omitempty"`
}

// ExportService renders XLSX reports and archives statements.
type ExportService struct {
	store  storage.ObjectStore
	prefix string
	db     *gorm.DB
}

// NewExportService wires exports. store and db may be nil: without a store
// archiving fails with ErrArchiveNotConfigured, without db no ArchiveRecord is kept.
func NewExportService(store storage.ObjectStore, prefix string, db *gorm.DB) *ExportService {
	return &ExportService{store: store, prefix: prefix, db: db}
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	money int
	err   error
}

func newSheet(name string) (*sheetWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		f.Close()
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("#,##0.00;[Red]-#,##0.00")})
	if err != nil {
		f.Close()
		return nil, err
	}
	return &sheetWriter{f: f, sheet: name, row: 1, money: money}, nil
}

func strPtr(s string) *string { return &s }

// write appends one row. Values of type cents are written as dollars with the money style.
func (w *sheetWriter) write(values ...interface{}) {
	if w.err != nil {
		return
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			w.err = err
			return
		}
		if c, ok := v.(cents); ok {
			if w.err = w.f.SetCellFloat(w.sheet, cell, float64(c)/100, 2, 64); w.err != nil {
				return
			}
			w.err = w.f.SetCellStyle(w.sheet, cell, cell, w.money)
		} else {
			w.err = w.f.SetCellValue(w.sheet, cell, v)
		}
		if w.err != nil {
			return
		}
	}
	w.row++
}

func (w *sheetWriter) bytes(fileName string) (*ExportFile, error) {
	defer w.f.Close()
	if w.err != nil {
		return nil, w.err
	}
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return &ExportFile{FileName: fileName, ContentType: XLSXContentType, Content: buf.Bytes()}, nil
}

type cents int64

// StatementWorkbook lays out opening balance, each entry with a running
// balance, then the closing balance.
func (e *ExportService) StatementWorkbook(st *billing.Statement) (*ExportFile, error) {
	w, err := newSheet("Statement")
	if err != nil {
		return nil, err
	}
	w.write("Family", st.FamilyName)
	w.write("Period", st.PeriodStart.Format("2006-01"))
	w.write()
	w.write("Date", "Description", "Charges", "Payments", "Balance")
	w.write(st.PeriodStart.Format("2006-01-02"), "Opening balance", "", "", cents(st.OpeningCents))

	running := st.OpeningCents
	for _, le := range st.Entries {
		running += le.SignedCents()
		if le.Type == models.LedgerDebit {
			w.write(le.PostedAt.UTC().Format("2006-01-02"), le.Memo, cents(le.AmountCents), "", cents(running))
		} else {
			w.write(le.PostedAt.UTC().Format("2006-01-02"), le.Memo, "", cents(le.AmountCents), cents(running))
		}
	}
	w.write(st.PeriodEnd.AddDate(0, 0, -1).Format("2006-01-02"), "Closing balance", "", "", cents(st.ClosingCents))

	return w.bytes(fmt.Sprintf("statement_%d_%s.xlsx", st.FamilyID, st.PeriodStart.Format("2006_01")))
}

// AgingWorkbook writes the aging report with a totals row.
func (e *ExportService) AgingWorkbook(rows []AgingRow, asOf time.Time) (*ExportFile, error) {
	w, err := newSheet("Aging")
	if err != nil {
		return nil, err
	}
	w.write("As of", asOf.UTC().Format("2006-01-02"))
	w.write()
	w.write("Family ID", "Family", "Balance", "Current", "30-59", "60-89", "90+")
	var total AgingRow
	for _, r := range rows {
		w.write(r.FamilyID, r.FamilyName, cents(r.BalanceCents), cents(r.CurrentCents), cents(r.Days30Cents), cents(r.Days60Cents), cents(r.Days90Cents))
		total.BalanceCents += r.BalanceCents
		total.CurrentCents += r.CurrentCents
		total.Days30Cents += r.Days30Cents
		total.Days60Cents += r.Days60Cents
		total.Days90Cents += r.Days90Cents
	}
	w.write("", "Total", cents(total.BalanceCents), cents(total.CurrentCents), cents(total.Days30Cents), cents(total.Days60Cents), cents(total.Days90Cents))
	return w.bytes(fmt.Sprintf("aging_%s.xlsx", asOf.UTC().Format("2006_01_02")))
}

// RevenueWorkbook writes daily revenue with a totals row.
func (e *ExportService) RevenueWorkbook(rows []RevenueDay, from, to time.Time) (*ExportFile, error) {
	w, err := newSheet("Revenue")
	if err != nil {
		return nil, err
	}
	w.write("From", from.Format("2006-01-02"), "To", to.Format("2006-01-02"))
	w.write()
	w.write("Date", "Payments", "Revenue")
	var total int64
	var count int
	for _, r := range rows {
		w.write(r.Date, r.Payments, cents(r.RevenueCents))
		total += r.RevenueCents
		count += r.Payments
	}
	w.write("Total", count, cents(total))
	return w.bytes(fmt.Sprintf("revenue_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102")))
}

// ArchiveStatement uploads a rendered statement and records it.
func (e *ExportService) ArchiveStatement(ctx context.Context, st *billing.Statement, file *ExportFile) error {
	if e.store == nil {
		return ErrArchiveNotConfigured
	}
	key := storage.ObjectKey(e.prefix, "statements", st.PeriodStart, file.FileName)
	if err := e.store.Put(ctx, key, file.ContentType, file.Content); err != nil {
		return err
	}
	file.ObjectKey = key

	if e.db != nil {
		done := time.Now().UTC()
		familyID := st.FamilyID
		record := &models.ArchiveRecord{
			Kind:        models.ArchiveStatement,
			FamilyID:    &familyID,
			FileName:    file.FileName,
			ObjectKey:   key,
			StartDate:   st.PeriodStart,
			EndDate:     st.PeriodEnd,
			RecordCount: len(st.Entries),
			FileSize:    int64(len(file.Content)),
			Status:      "completed",
			CompletedAt: &done,
		}
		if err := e.db.WithContext(ctx).Create(record).Error; err != nil {
			logrus.WithError(err).WithField("object_key", key).Error("Failed to save statement archive record")
		}
	}

	logrus.WithFields(logrus.Fields{
		"family_id":  st.FamilyID,
		"object_key": key,
		"closing":    utils.FormatCents(st.ClosingCents),
	}).Info("Statement archived")
	return nil
}
