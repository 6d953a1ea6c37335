package export

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"captcha-trainer/internal/models"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// utf8BOM lets spreadsheet applications detect the encoding
const utf8BOM = "\ufeff"

// Header is the CSV column order
var Header = []string{"id", "timestamp", "model_used", "correct_text", "status", "image_base64"}

// Record is the exported form of a label record
type Record struct {
	ID          int64               `json:"id"`
	Timestamp   string              `json:"timestamp"`
	ModelUsed   string              `json:"model_used"`
	CorrectText string              `json:"correct_text"`
	Status      models.RecordStatus `json:"status"`
	ImageBase64 string              `json:"image_base64"`
}

func toRecord(rec models.LabelRecord) Record {
	return Record{
		ID:          rec.ID,
		Timestamp:   rec.CreatedAt.UTC().Format(time.RFC3339),
		ModelUsed:   rec.ModelUsed,
		CorrectText: rec.CorrectText,
		Status:      rec.Status,
		ImageBase64: base64.StdEncoding.EncodeToString(rec.Image),
	}
}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download name for an export taken at t
func (f Format) Filename(t time.Time) string {
	return fmt.Sprintf("captcha_labels_%s.%s", t.Format("20060102_150405"), f)
}

// OldestFirst reverses records listed most recent first, in place
func OldestFirst(recs []models.LabelRecord) []models.LabelRecord {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs
}

// Write encodes recs to w in format f
func Write(w io.Writer, f Format, recs []models.LabelRecord) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, recs)
	case FormatJSON:
		return WriteJSON(w, recs)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// WriteCSV writes a UTF-8 CSV with byte order mark
func WriteCSV(w io.Writer, recs []models.LabelRecord) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range recs {
		r := toRecord(rec)
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp,
			r.ModelUsed,
			r.CorrectText,
			string(r.Status),
			r.ImageBase64,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", r.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes an indented JSON document
func WriteJSON(w io.Writer, recs []models.LabelRecord) error {
	doc := struct {
		Total   int      `json:"total"`
		Records []Record `json:"records"`
	}{
		Total:   len(recs),
		Records: make([]Record, 0, len(recs)),
	}
	for _, rec := range recs {
		doc.Records = append(doc.Records, toRecord(rec))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
