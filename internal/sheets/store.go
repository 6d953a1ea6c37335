// Package sheets stores label records in a Google Sheets tab with the columns
// timestamp, model_used, correct_text, image_base64 and (newer sheets) status.
package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"captcha-trainer/internal/imageutil"
	"captcha-trainer/internal/models"
	"captcha-trainer/internal/repository"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// TimeLayout is how timestamps are written to the sheet
const TimeLayout = "2006-01-02 15:04:05"

// Column names, in the order new sheets are created with
const (
	ColTimestamp   = "timestamp"
	ColModelUsed   = "model_used"
	ColCorrectText = "correct_text"
	ColImage       = "image_base64"
	ColStatus      = "status"
)

var defaultHeader = []string{ColTimestamp, ColModelUsed, ColCorrectText, ColImage, ColStatus}

// Config for the spreadsheet store
type Config struct {
	SpreadsheetID   string
	Table           string // tab name
	CredentialsJSON []byte
	MaxImageWidth   int
	Options         []option.ClientOption
}

// Store is a repository.LabelStore backed by one spreadsheet tab
type Store struct {
	srv           *sheets.Service
	spreadsheetID string
	table         string
	maxWidth      int
	logger        *zap.Logger
}

var _ repository.LabelStore = (*Store)(nil)
var _ repository.StatusReporter = (*Store)(nil)

// NewStore creates a new spreadsheet-backed store
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.Table == "" {
		cfg.Table = "records"
	}
	if cfg.MaxImageWidth <= 0 {
		cfg.MaxImageWidth = imageutil.DefaultMaxWidth
	}

	opts := cfg.Options
	if len(cfg.CredentialsJSON) > 0 {
		opts = append([]option.ClientOption{
			option.WithCredentialsJSON(cfg.CredentialsJSON),
			option.WithScopes(sheets.SpreadsheetsScope),
		}, opts...)
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	logger.Info("Spreadsheet store initialized",
		zap.String("spreadsheet_id", cfg.SpreadsheetID),
		zap.String("table", cfg.Table),
		zap.Int("max_image_width", cfg.MaxImageWidth))

	return &Store{
		srv:           srv,
		spreadsheetID: cfg.SpreadsheetID,
		table:         cfg.Table,
		maxWidth:      cfg.MaxImageWidth,
		logger:        logger,
	}, nil
}

// layout maps column names to their index in the sheet
type layout map[string]int

func parseHeader(row []interface{}) (layout, bool) {
	l := make(layout)
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(fmt.Sprint(cell)))
		if name != "" {
			l[name] = i
		}
	}
	_, hasText := l[ColCorrectText]
	return l, hasText
}

func defaultLayout() layout {
	l := make(layout)
	for i, name := range defaultHeader {
		l[name] = i
	}
	return l
}

func (l layout) cell(row []interface{}, name string) string {
	i, ok := l[name]
	if !ok || i >= len(row) {
		return ""
	}
	return fmt.Sprint(row[i])
}

func (l layout) width() int {
	w := 0
	for _, i := range l {
		if i+1 > w {
			w = i + 1
		}
	}
	return w
}

// read returns the layout and the data rows below the header
func (s *Store) read(ctx context.Context) (layout, [][]interface{}, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.table).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w: %w", s.table, repository.ErrUnavailable, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil, nil
	}
	if l, ok := parseHeader(resp.Values[0]); ok {
		return l, resp.Values[1:], nil
	}
	// headerless sheet, assume the fixed column order
	return defaultLayout(), resp.Values, nil
}

// Append writes one row. An empty sheet gets the header first.
func (s *Store) Append(ctx context.Context, rec *models.LabelRecord) error {
	l, rows, err := s.read(ctx)
	if err != nil {
		return err
	}

	var values [][]interface{}
	if l == nil {
		l = defaultLayout()
		header := make([]interface{}, len(defaultHeader))
		for i, name := range defaultHeader {
			header[i] = name
		}
		values = append(values, header)
	}

	encoded, err := imageutil.ToBase64PNG(rec.Image, s.maxWidth)
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	row := make([]interface{}, l.width())
	for i := range row {
		row[i] = ""
	}
	set := func(name, value string) {
		if i, ok := l[name]; ok {
			row[i] = value
		}
	}
	set(ColTimestamp, rec.CreatedAt.Format(TimeLayout))
	set(ColModelUsed, rec.ModelUsed)
	set(ColCorrectText, rec.CorrectText)
	set(ColImage, encoded)
	set(ColStatus, string(rec.Status))
	values = append(values, row)

	_, err = s.srv.Spreadsheets.Values.Append(s.spreadsheetID, s.table, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w: %w", repository.ErrUnavailable, err)
	}

	// sheet row number, counting the header
	rec.ID = int64(len(rows) + 2)
	return nil
}

// Recent returns the last limit rows, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]models.LabelRecord, error) {
	l, rows, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return s.records(l, rows, limit), nil
}

// All returns every row, newest first
func (s *Store) All(ctx context.Context) ([]models.LabelRecord, error) {
	l, rows, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return s.records(l, rows, len(rows)), nil
}

// HasStatusColumn reports whether the header carries the status column
func (s *Store) HasStatusColumn(ctx context.Context) (bool, error) {
	l, _, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	if l == nil {
		// new sheets are created with the full header
		return true, nil
	}
	_, ok := l[ColStatus]
	return ok, nil
}

func (s *Store) records(l layout, rows [][]interface{}, limit int) []models.LabelRecord {
	if limit <= 0 || len(rows) == 0 {
		return []models.LabelRecord{}
	}
	out := make([]models.LabelRecord, 0, min(limit, len(rows)))
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		rec, ok := s.parseRow(l, rows[i])
		if !ok {
			continue
		}
		rec.ID = int64(i + 2)
		out = append(out, rec)
	}
	return out
}

func (s *Store) parseRow(l layout, row []interface{}) (models.LabelRecord, bool) {
	text := strings.TrimSpace(l.cell(row, ColCorrectText))
	if text == "" {
		return models.LabelRecord{}, false
	}

	rec := models.LabelRecord{
		CorrectText: text,
		ModelUsed:   l.cell(row, ColModelUsed),
		CreatedAt:   parseTime(l.cell(row, ColTimestamp)),
		Status:      models.RecordStatus(strings.TrimSpace(l.cell(row, ColStatus))),
	}

	if raw := l.cell(row, ColImage); raw != "" {
		img, err := imageutil.FromBase64PNG(raw)
		if err != nil {
			s.logger.Warn("Skipping unreadable image cell",
				zap.String("table", s.table),
				zap.String("correct_text", text),
				zap.Error(err))
		} else {
			rec.Image = img
		}
	}
	return rec, true
}

func parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, format := range []string{TimeLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(format, v); err == nil {
			return t
		}
	}
	// Sheets serial dates, if the column was reformatted by hand
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return epoch.Add(time.Duration(f * 24 * float64(time.Hour)))
	}
	return time.Time{}
}

func (s *Store) Name() string {
	return "sheets"
}

func (s *Store) Close() error {
	return nil
}
