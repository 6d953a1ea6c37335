package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"captcha-trainer/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProvider records calls and replays a canned answer
type fakeProvider struct {
	raw    string
	err    error
	calls  int
	parts  []Part
	closed int
}

func (f *fakeProvider) Generate(_ context.Context, _ string, parts []Part) (string, error) {
	f.calls++
	f.parts = parts
	return f.raw, f.err
}

func (f *fakeProvider) Close() error {
	f.closed++
	return nil
}

func (f *fakeProvider) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{"provider": "fake"}
}

func TestExtractAfterDelimiter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"zh delimiter", "描述：藍色文字，有干擾線。結果：A7b2", "A7b2"},
		{"en delimiter", "Description: red text. Result: Qx9z ", "Qx9z"},
		{"last occurrence wins", "結果：wrong\n描述：再看一次。結果： right\n", "right"},
		{"mixed delimiters take the later one", "Result: first 結果：second", "second"},
		{"no delimiter", "  plain7 \n", "plain7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAfterDelimiter(tt.raw, DelimiterZH, DelimiterEN))
		})
	}
}

func TestAssemblerOrdersExamplesOldestFirst(t *testing.T) {
	a := NewAssembler(LanguageZH)
	target := []byte("target")
	// most-recent-first, as Recent returns them
	examples := []models.GoldStandardExample{
		{Image: []byte("newest"), Text: "C3"},
		{Image: []byte("middle"), Text: "B2"},
		{Image: []byte("oldest"), Text: "A1"},
	}

	got := a.Build(examples, target)

	want := []Part{
		TextPart(a.Instruction()),
		ImagePart([]byte("oldest")), TextPart("描述：已校正範例。結果：A1"),
		ImagePart([]byte("middle")), TextPart("描述：已校正範例。結果：B2"),
		ImagePart([]byte("newest")), TextPart("描述：已校正範例。結果：C3"),
		ImagePart(target),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemblerWithoutExamples(t *testing.T) {
	a := NewAssembler(LanguageEN)
	got := a.Build(nil, []byte("t"))
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Text, "Result:")
	assert.True(t, got[1].IsImage())
	assert.Equal(t, DelimiterEN, a.Delimiter())
}

func TestAssemblerUnknownLanguageFallsBackToZH(t *testing.T) {
	a := NewAssembler("fr")
	assert.Equal(t, LanguageZH, a.Language())
	assert.Equal(t, DelimiterZH, a.Delimiter())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"status 429", &StatusError{Provider: "openrouter", Code: 429}, ErrQuotaExceeded},
		{"status 404", &StatusError{Provider: "openrouter", Code: 404}, ErrModelNotFound},
		{"googleapi 429", fmt.Errorf("gemini: %w", &googleapi.Error{Code: 429}), ErrQuotaExceeded},
		{"googleapi 404", &googleapi.Error{Code: 404, Message: "models/x is not found"}, ErrModelNotFound},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "slow down"), ErrQuotaExceeded},
		{"grpc not found", status.Error(codes.NotFound, "no such model"), ErrModelNotFound},
		{"quota text", errors.New("You exceeded your current quota"), ErrQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ClassifyError(tt.err), tt.want)
		})
	}

	unknown := errors.New("connection reset by peer")
	assert.Same(t, unknown, ClassifyError(unknown))
	assert.NoError(t, ClassifyError(nil))
	assert.ErrorIs(t, ClassifyError(ErrEmptyResponse), ErrEmptyResponse)
}

func TestRecognize(t *testing.T) {
	ctx := context.Background()

	t.Run("parses label", func(t *testing.T) {
		p := &fakeProvider{raw: "描述：綠色。結果：aB3x"}
		label, err := Recognize(ctx, p, "m", nil, DelimiterZH)
		require.NoError(t, err)
		assert.Equal(t, "aB3x", label)
	})

	t.Run("empty output", func(t *testing.T) {
		p := &fakeProvider{raw: "  "}
		_, err := Recognize(ctx, p, "m", nil, DelimiterZH)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("empty content from provider", func(t *testing.T) {
		p := &fakeProvider{err: ErrEmptyResponse}
		_, err := Recognize(ctx, p, "m", nil, DelimiterZH)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("quota", func(t *testing.T) {
		p := &fakeProvider{err: &StatusError{Code: 429}}
		_, err := Recognize(ctx, p, "m", nil, DelimiterZH)
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, 1, p.calls, "no retry")
	})
}

func TestQuotaState(t *testing.T) {
	q := NewQuotaState()
	assert.NoError(t, q.Check("X"))

	q.Block("X")
	q.Block("A")
	assert.True(t, q.IsBlocked("X"))
	assert.ErrorIs(t, q.Check("X"), ErrModelBlocked)
	assert.False(t, q.IsBlocked("Y"))
	assert.Equal(t, []string{"A", "X"}, q.Blocked())

	q.Reset()
	assert.Empty(t, q.Blocked())
}

func TestRegistry(t *testing.T) {
	shared := &fakeProvider{}
	other := &fakeProvider{}
	r := NewRegistry(zap.NewNop())
	r.Register("gemini-2.5-flash-lite", ProviderGemini, shared)
	r.Register("gemini-2.0-flash", ProviderGemini, shared)
	r.Register("qwen/qwen2.5-vl", ProviderOpenRouter, other)

	assert.Equal(t, []string{"gemini-2.5-flash-lite", "gemini-2.0-flash", "qwen/qwen2.5-vl"}, r.Models())
	assert.Equal(t, ProviderOpenRouter, r.ProviderOf("qwen/qwen2.5-vl"))

	p, err := r.Lookup("gemini-2.0-flash")
	require.NoError(t, err)
	assert.Same(t, shared, p)

	_, err = r.Lookup("nope")
	assert.ErrorIs(t, err, ErrModelNotFound)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, shared.closed)
	assert.Equal(t, 1, other.closed)
}

func TestRateLimitedProvider(t *testing.T) {
	inner := &fakeProvider{raw: "ok"}
	p := NewRateLimitedProvider(inner, 60, zap.NewNop())

	out, err := p.Generate(context.Background(), "m", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, "m", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)

	assert.InDelta(t, 60.0, p.GetModelInfo()["requests_per_minute"], 1e-6)
}

func TestRegistryClosesSharedClientBehindPacers(t *testing.T) {
	shared := &fakeProvider{}
	r := NewRegistry(zap.NewNop())
	r.Register("gemini-2.5-flash-lite", ProviderGemini, NewRateLimitedProvider(shared, 10, zap.NewNop()))
	r.Register("gemini-2.0-flash", ProviderGemini, NewRateLimitedProvider(shared, 15, zap.NewNop()))

	require.NoError(t, r.Close())
	assert.Equal(t, 1, shared.closed)
}
