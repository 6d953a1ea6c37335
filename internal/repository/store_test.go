package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"captcha-trainer/internal/models"
	"captcha-trainer/internal/testdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(DriverSQLite, filepath.Join(t.TempDir(), "records.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func backends(t *testing.T) map[string]LabelStore {
	return map[string]LabelStore{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func appendN(t *testing.T, s LabelStore, n int) []models.LabelRecord {
	t.Helper()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := make([]models.LabelRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := models.LabelRecord{
			Image:       testdata.CaptchaPNG(20, 8, uint8(i)),
			CorrectText: fmt.Sprintf("L%d", i),
			ModelUsed:   "gemini-2.5-flash-lite",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			Status:      models.StatusHumanCorrected,
		}
		require.NoError(t, s.Append(context.Background(), &rec))
		assert.NotZero(t, rec.ID)
		out = append(out, rec)
	}
	return out
}

func TestRecentReturnsMinKNInReverseOrder(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := store.Recent(ctx, 3)
			require.NoError(t, err)
			assert.Empty(t, empty)

			appendN(t, store, 5)

			for _, k := range []int{1, 3, 5, 8} {
				got, err := store.Recent(ctx, k)
				require.NoError(t, err)
				require.Len(t, got, min(k, 5))
				for i, rec := range got {
					assert.Equal(t, fmt.Sprintf("L%d", 4-i), rec.CorrectText)
				}
			}

			all, err := store.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 5)
			assert.Equal(t, "L4", all[0].CorrectText)
			assert.Equal(t, "L0", all[4].CorrectText)
		})
	}
}

func TestAppendKeepsImageAndMetadata(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			img := testdata.CaptchaPNG(64, 24, 42)
			created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

			rec := &models.LabelRecord{
				Image:       img,
				CorrectText: "aB3x",
				ModelUsed:   "gemini-2.0-flash",
				CreatedAt:   created,
				Status:      models.StatusAICorrect,
			}
			require.NoError(t, store.Append(ctx, rec))

			got, err := store.Recent(ctx, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, rec.ID, got[0].ID)
			assert.Equal(t, img, got[0].Image, "blob must round-trip byte for byte")
			assert.Equal(t, "aB3x", got[0].CorrectText)
			assert.Equal(t, "gemini-2.0-flash", got[0].ModelUsed)
			assert.Equal(t, models.StatusAICorrect, got[0].Status)
			assert.True(t, created.Equal(got[0].CreatedAt), "created_at %v", got[0].CreatedAt)
		})
	}
}

func TestMemoryStoreCopiesImage(t *testing.T) {
	s := NewMemoryStore()
	img := []byte{1, 2, 3}
	require.NoError(t, s.Append(context.Background(), &models.LabelRecord{Image: img, CorrectText: "x"}))
	img[0] = 9

	got, err := s.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Image)
}

func TestSQLStoreLegacyRowsHaveNoStatus(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.db.Exec(
		`INSERT INTO records (image_data, correct_text, model_used, timestamp) VALUES (?, ?, ?, ?)`,
		[]byte{1}, "old1", "gemini-1.5-flash", time.Now().UTC(),
	)
	require.NoError(t, err)

	got, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RecordStatus(""), got[0].Status)
}

func TestSQLStoreMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	first, err := NewSQLStore(DriverSQLite, path, zap.NewNop())
	require.NoError(t, err)
	appendN(t, first, 2)
	require.NoError(t, first.Close())

	second, err := NewSQLStore(DriverSQLite, path, zap.NewNop())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLStoreUnavailableAfterClose(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Close())

	err := store.Append(context.Background(), &models.LabelRecord{Image: []byte{1}, CorrectText: "x", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = store.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenDBRejectsUnknownDriver(t *testing.T) {
	_, err := OpenDB("mysql", "x", zap.NewNop())
	assert.Error(t, err)
}

func TestUnavailableStore(t *testing.T) {
	cause := fmt.Errorf("spreadsheet not found")
	store := NewUnavailableStore("sheets", cause)
	ctx := context.Background()

	err := store.Append(ctx, &models.LabelRecord{CorrectText: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)

	recs, err := store.Recent(ctx, 3)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, recs)

	_, err = store.All(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "sheets", store.Name())
	assert.NoError(t, store.Close())
}
