package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"captcha-trainer/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SQLStore keeps records in the relational table
// records(id, image_data, correct_text, model_used, timestamp, status)
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

type recordRow struct {
	ID          int64          `db:"id"`
	ImageData   []byte         `db:"image_data"`
	CorrectText string         `db:"correct_text"`
	ModelUsed   string         `db:"model_used"`
	Timestamp   time.Time      `db:"timestamp"`
	Status      sql.NullString `db:"status"`
}

func (r recordRow) record() models.LabelRecord {
	return models.LabelRecord{
		ID:          r.ID,
		Image:       r.ImageData,
		CorrectText: r.CorrectText,
		ModelUsed:   r.ModelUsed,
		CreatedAt:   r.Timestamp,
		Status:      models.RecordStatus(r.Status.String),
	}
}

// NewSQLStore opens dsn with driver and migrates the schema
func NewSQLStore(driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := OpenDB(driver, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := MigrateDB(db, driver, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Label repository initialized", zap.String("driver", driver))
	return NewSQLStoreFromDB(db, driver, logger), nil
}

// NewSQLStoreFromDB wraps an already migrated connection
func NewSQLStoreFromDB(db *sqlx.DB, driver string, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, driver: driver, logger: logger}
}

// Append saves a single record
func (s *SQLStore) Append(ctx context.Context, rec *models.LabelRecord) error {
	var status sql.NullString
	if rec.Status != "" {
		status = sql.NullString{String: string(rec.Status), Valid: true}
	}

	query := `
		INSERT INTO records (image_data, correct_text, model_used, timestamp, status)
		VALUES (?, ?, ?, ?, ?)
	`
	args := []interface{}{rec.Image, rec.CorrectText, rec.ModelUsed, rec.CreatedAt.UTC(), status}

	if s.driver == DriverPostgres {
		var id int64
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return fmt.Errorf("failed to save record: %w: %w", ErrUnavailable, err)
		}
		rec.ID = id
		return nil
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to save record: %w: %w", ErrUnavailable, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// Recent retrieves the newest records
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]models.LabelRecord, error) {
	if limit <= 0 {
		return []models.LabelRecord{}, nil
	}
	query := `
		SELECT id, image_data, correct_text, model_used, timestamp, status
		FROM records
		ORDER BY id DESC
		LIMIT ?
	`
	return s.selectRecords(ctx, s.db.Rebind(query), limit)
}

// All retrieves every record, newest first
func (s *SQLStore) All(ctx context.Context) ([]models.LabelRecord, error) {
	query := `
		SELECT id, image_data, correct_text, model_used, timestamp, status
		FROM records
		ORDER BY id DESC
	`
	return s.selectRecords(ctx, query)
}

func (s *SQLStore) selectRecords(ctx context.Context, query string, args ...interface{}) ([]models.LabelRecord, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query records: %w: %w", ErrUnavailable, err)
	}

	records := make([]models.LabelRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

func (s *SQLStore) Name() string {
	return s.driver
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
