package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"captcha-trainer/internal/imageutil"
	"captcha-trainer/internal/models"
	"captcha-trainer/internal/repository"
	"captcha-trainer/internal/testdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// fakeSheet is a minimal Sheets values API
type fakeSheet struct {
	mu      sync.Mutex
	values  [][]interface{}
	fail    bool
	appends int
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.fail {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"range":          "records",
			"majorDimension": "ROWS",
			"values":         f.values,
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.values = append(f.values, body.Values...)
		f.appends++
		_, _ = w.Write([]byte(`{"spreadsheetId":"sid"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T, sheet *fakeSheet) *Store {
	t.Helper()
	srv := httptest.NewServer(sheet)
	t.Cleanup(srv.Close)

	store, err := NewStore(context.Background(), Config{
		SpreadsheetID: "sid",
		Table:         "records",
		MaxImageWidth: 100,
		Options: []option.ClientOption{
			option.WithHTTPClient(srv.Client()),
			option.WithEndpoint(srv.URL + "/"),
		},
	}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func record(text string, i int) *models.LabelRecord {
	return &models.LabelRecord{
		Image:       testdata.CaptchaPNG(300, 60, uint8(i)),
		CorrectText: text,
		ModelUsed:   "gemini-2.5-flash-lite",
		CreatedAt:   time.Date(2026, 5, 6, 7, 8, i, 0, time.UTC),
		Status:      models.StatusAICorrect,
	}
}

func TestAppendToEmptySheetWritesHeader(t *testing.T) {
	sheet := &fakeSheet{}
	store := newTestStore(t, sheet)
	ctx := context.Background()

	rec := record("aB3x", 1)
	require.NoError(t, store.Append(ctx, rec))
	assert.Equal(t, int64(2), rec.ID)

	require.Len(t, sheet.values, 2)
	assert.Equal(t, []interface{}{"timestamp", "model_used", "correct_text", "image_base64", "status"}, sheet.values[0])
	row := sheet.values[1]
	assert.Equal(t, "2026-05-06 07:08:01", row[0])
	assert.Equal(t, "aB3x", row[2])
	assert.Equal(t, "AI_CORRECT", row[4])

	got, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aB3x", got[0].CorrectText)
	assert.Equal(t, models.StatusAICorrect, got[0].Status)
	assert.True(t, rec.CreatedAt.Equal(got[0].CreatedAt))

	img, _, err := imageutil.Decode(got[0].Image)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx(), "image is bounded to the configured max width")
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestRecentOrderAndLimit(t *testing.T) {
	sheet := &fakeSheet{}
	store := newTestStore(t, sheet)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, record(fmt.Sprintf("T%d", i), i)))
	}
	assert.Equal(t, 4, sheet.appends)
	assert.Len(t, sheet.values, 5, "one header plus four rows")

	for _, k := range []int{0, 2, 4, 9} {
		got, err := store.Recent(ctx, k)
		require.NoError(t, err)
		require.Len(t, got, min(k, 4))
		for i, rec := range got {
			assert.Equal(t, fmt.Sprintf("T%d", 3-i), rec.CorrectText)
		}
	}

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLegacySheetWithoutStatusColumn(t *testing.T) {
	sheet := &fakeSheet{values: [][]interface{}{
		{"timestamp", "model_used", "correct_text", "image_base64"},
		{"2025-12-01 10:00:00", "gemini-2.0-flash", "old1", ""},
	}}
	store := newTestStore(t, sheet)
	ctx := context.Background()

	ok, err := store.HasStatusColumn(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Append(ctx, record("new1", 2)))
	require.Len(t, sheet.values, 3)
	assert.Len(t, sheet.values[2], 4, "no status cell on a legacy sheet")

	got, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new1", got[0].CorrectText)
	assert.Equal(t, "old1", got[1].CorrectText)
	assert.Nil(t, got[1].Image)
	assert.Equal(t, models.RecordStatus(""), got[1].Status)
}

func TestUnreachableSheetIsUnavailable(t *testing.T) {
	sheet := &fakeSheet{fail: true}
	store := newTestStore(t, sheet)
	ctx := context.Background()

	err := store.Append(ctx, record("x", 1))
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	_, err = store.Recent(ctx, 3)
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	_, err = store.HasStatusColumn(ctx)
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.True(t, want.Equal(parseTime("2026-01-02 03:04:05")))
	assert.True(t, want.Equal(parseTime("2026-01-02T03:04:05Z")))
	assert.True(t, parseTime("garbage").IsZero())
}

func TestNewStoreRequiresSpreadsheetID(t *testing.T) {
	_, err := NewStore(context.Background(), Config{}, zap.NewNop())
	assert.Error(t, err)
}
