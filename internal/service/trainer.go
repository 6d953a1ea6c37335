package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"captcha-trainer/internal/export"
	"captcha-trainer/internal/imageutil"
	"captcha-trainer/internal/llm"
	"captcha-trainer/internal/models"
	"captcha-trainer/internal/repository"

	"go.uber.org/zap"
)

var (
	// ErrNoUpload means the session has no image to rate
	ErrNoUpload = errors.New("no image uploaded")
	// ErrNotRecognized means the current image has no recognition result yet
	ErrNotRecognized = errors.New("image has not been recognized")
	// ErrAlreadyRated means the current image was confirmed or corrected already
	ErrAlreadyRated = errors.New("image has already been rated")
	// ErrNothingToConfirm means the model gave no label, only a correction is possible
	ErrNothingToConfirm = errors.New("model produced no label to confirm")
	// ErrInvalidImage wraps decoding failures of uploaded files
	ErrInvalidImage = errors.New("invalid image")
)

// Config tunes the trainer
type Config struct {
	Examples int // gold-standard examples per request
	Target   int // progress bar goal
}

// Trainer runs the recognize / rate / learn cycle
type Trainer struct {
	store     repository.LabelStore
	registry  *llm.Registry
	quota     *llm.QuotaState
	assembler *llm.Assembler
	sessions  *SessionStore
	cfg       Config
	logger    *zap.Logger
}

// NewTrainer creates a new trainer service
func NewTrainer(
	store repository.LabelStore,
	registry *llm.Registry,
	quota *llm.QuotaState,
	assembler *llm.Assembler,
	cfg Config,
	logger *zap.Logger,
) *Trainer {
	if cfg.Examples < 0 {
		cfg.Examples = 0
	}
	if cfg.Target <= 0 {
		cfg.Target = 5
	}
	return &Trainer{
		store:     store,
		registry:  registry,
		quota:     quota,
		assembler: assembler,
		sessions:  NewSessionStore(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Session returns the session for id, creating it when unknown
func (t *Trainer) Session(id string) *Session {
	return t.sessions.Get(id)
}

// DefaultModel is the first configured model
func (t *Trainer) DefaultModel() string {
	ids := t.registry.Models()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Upload recognizes a new image for the session. Uploading the file that was
// processed last is a no-op and sends nothing to the model service.
func (t *Trainer) Upload(ctx context.Context, sess *Session, filename string, data []byte, modelID string) (*models.RecognitionResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if modelID == "" {
		modelID = t.DefaultModel()
	}

	if filename != "" && filename == sess.lastProcessed && sess.current != nil && sess.current.filename == filename {
		t.logger.Debug("Skipping already processed upload",
			zap.String("session", sess.ID),
			zap.String("filename", filename))
		return &models.RecognitionResult{Session: sess.view(), Skipped: true}, nil
	}

	provider, err := t.registry.Lookup(modelID)
	if err != nil {
		return nil, err
	}
	if err := t.quota.Check(modelID); err != nil {
		return nil, err
	}

	png, err := imageutil.NormalizeToPNG(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	sess.current = &upload{
		filename: filename,
		model:    modelID,
		image:    png,
		state:    models.StatePending,
	}

	examples, warning := t.goldStandard(ctx, t.cfg.Examples)
	payload := t.assembler.Build(examples, png)

	label, err := llm.Recognize(ctx, provider, modelID, payload, llm.DelimiterZH, llm.DelimiterEN)
	switch {
	case err == nil:
		if label, err = models.NormalizeLabel(label); err != nil {
			sess.current.empty = true
		}
	case errors.Is(err, llm.ErrEmptyResponse):
		sess.current.empty = true
	case errors.Is(err, llm.ErrQuotaExceeded):
		t.quota.Block(modelID)
		t.logger.Warn("Model quota exceeded, blocking model",
			zap.String("model", modelID),
			zap.Error(err))
		return nil, err
	default:
		t.logger.Error("Recognition failed",
			zap.String("session", sess.ID),
			zap.String("model", modelID),
			zap.Error(err))
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	sess.current.state = models.StateRecognized
	sess.current.label = label
	sess.lastProcessed = filename

	t.logger.Info("Image recognized",
		zap.String("session", sess.ID),
		zap.String("model", modelID),
		zap.Int("examples", len(examples)),
		zap.String("label", label),
		zap.Bool("empty", sess.current.empty))

	return &models.RecognitionResult{Session: sess.view(), Warning: warning}, nil
}

// Confirm accepts the model's label as correct
func (t *Trainer) Confirm(ctx context.Context, sess *Session) (*models.FeedbackResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := checkRateable(sess); err != nil {
		return nil, err
	}
	if sess.current.empty {
		return nil, ErrNothingToConfirm
	}
	return t.rate(ctx, sess, sess.current.label, models.StatusAICorrect), nil
}

// Correct replaces the model's label with a human answer. An answer that is
// empty after normalization is rejected and nothing changes.
func (t *Trainer) Correct(ctx context.Context, sess *Session, text string) (*models.FeedbackResult, error) {
	label, err := models.NormalizeLabel(text)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := checkRateable(sess); err != nil {
		return nil, err
	}
	return t.rate(ctx, sess, label, models.StatusHumanCorrected), nil
}

func checkRateable(sess *Session) error {
	switch {
	case sess.current == nil:
		return ErrNoUpload
	case sess.current.state == models.StateRated:
		return ErrAlreadyRated
	case sess.current.state != models.StateRecognized:
		return ErrNotRecognized
	}
	return nil
}

// rate stores the verdict and moves the upload to Rated. A store failure is
// reported in the result, the session still advances.
func (t *Trainer) rate(ctx context.Context, sess *Session, label string, status models.RecordStatus) *models.FeedbackResult {
	cur := sess.current
	rec := &models.LabelRecord{
		Image:       cur.image,
		CorrectText: label,
		ModelUsed:   cur.model,
		CreatedAt:   time.Now().UTC(),
		Status:      status,
	}

	result := &models.FeedbackResult{Saved: true}
	if err := t.store.Append(ctx, rec); err != nil {
		t.logger.Error("Failed to save label",
			zap.String("session", sess.ID),
			zap.String("store", t.store.Name()),
			zap.Error(err))
		result.Saved = false
		result.Warning = "label was not saved: " + err.Error()
	} else {
		t.logger.Info("Label saved",
			zap.String("session", sess.ID),
			zap.Int64("id", rec.ID),
			zap.String("status", string(status)))
	}

	cur.state = models.StateRated
	cur.finalLabel = label
	cur.status = status
	sess.stats.Total++
	if status == models.StatusAICorrect {
		sess.stats.Correct++
	}

	result.Session = sess.view()
	return result
}

// View returns a snapshot of the session
func (t *Trainer) View(sess *Session) models.SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view()
}

// ResetStats zeroes the session counters
func (t *Trainer) ResetStats(sess *Session) models.SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.stats = models.SessionStats{}
	return sess.view()
}

// goldStandard loads up to limit examples, most recent first. An unreachable
// store yields no examples and a warning; records without an image are skipped.
func (t *Trainer) goldStandard(ctx context.Context, limit int) ([]models.GoldStandardExample, string) {
	if limit == 0 {
		return nil, ""
	}
	recs, err := t.store.Recent(ctx, limit)
	if err != nil {
		t.logger.Warn("Label store unavailable, recognizing without examples",
			zap.String("store", t.store.Name()),
			zap.Error(err))
		return nil, "examples unavailable: " + err.Error()
	}

	examples := make([]models.GoldStandardExample, 0, len(recs))
	for _, rec := range recs {
		if len(rec.Image) == 0 {
			continue
		}
		examples = append(examples, rec.Example())
	}
	return examples, ""
}

// Examples reports the gold-standard collection progress and the labels the
// next request will carry, in the order they are sent
func (t *Trainer) Examples(ctx context.Context) models.ExamplesView {
	view := models.ExamplesView{Target: t.cfg.Target, Labels: []string{}}

	all, err := t.store.All(ctx)
	if err != nil {
		t.logger.Warn("Failed to load examples", zap.Error(err))
		view.Warning = "examples unavailable: " + err.Error()
		return view
	}
	view.Count = len(all)

	var next []string
	for _, rec := range all {
		if len(next) == t.cfg.Examples {
			break
		}
		if len(rec.Image) > 0 {
			next = append(next, rec.CorrectText)
		}
	}
	for i := len(next) - 1; i >= 0; i-- {
		view.Labels = append(view.Labels, next[i])
	}
	return view
}

// Records lists every stored record without image bytes, most recent first
func (t *Trainer) Records(ctx context.Context) ([]models.RecordSummary, error) {
	all, err := t.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RecordSummary, 0, len(all))
	for _, rec := range all {
		out = append(out, models.RecordSummary{
			ID:          rec.ID,
			CorrectText: rec.CorrectText,
			ModelUsed:   rec.ModelUsed,
			CreatedAt:   rec.CreatedAt,
			Status:      rec.Status,
		})
	}
	return out, nil
}

// OverallStats computes accuracy over every record that carries a status.
// Backends without a status column get a warning and no accuracy.
func (t *Trainer) OverallStats(ctx context.Context) (*models.OverallStats, error) {
	if reporter, ok := t.store.(repository.StatusReporter); ok {
		has, err := reporter.HasStatusColumn(ctx)
		if err != nil {
			return nil, err
		}
		if !has {
			t.logger.Warn("Status column missing, skipping overall accuracy",
				zap.String("store", t.store.Name()))
			return &models.OverallStats{Warning: "status column missing, overall accuracy skipped"}, nil
		}
	}

	all, err := t.store.All(ctx)
	if err != nil {
		return nil, err
	}

	var stats models.SessionStats
	for _, rec := range all {
		if !rec.Status.Valid() {
			continue
		}
		stats.Total++
		if rec.Status == models.StatusAICorrect {
			stats.Correct++
		}
	}
	accuracy := stats.Accuracy()
	return &models.OverallStats{
		Total:    stats.Total,
		Correct:  stats.Correct,
		Accuracy: &accuracy,
	}, nil
}

// Models lists the configured models with their quota state
func (t *Trainer) Models() []models.ModelView {
	ids := t.registry.Models()
	out := make([]models.ModelView, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ModelView{
			ID:       id,
			Provider: string(t.registry.ProviderOf(id)),
			Blocked:  t.quota.IsBlocked(id),
		})
	}
	return out
}

// ResetQuota unblocks every model and returns the ones that were blocked
func (t *Trainer) ResetQuota() []string {
	blocked := t.quota.Blocked()
	t.quota.Reset()
	t.logger.Info("Quota state cleared", zap.Strings("models", blocked))
	return blocked
}

// ExportRecords returns every record oldest first
func (t *Trainer) ExportRecords(ctx context.Context) ([]models.LabelRecord, error) {
	all, err := t.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return export.OldestFirst(all), nil
}

// StoreName identifies the label store backend
func (t *Trainer) StoreName() string {
	return t.store.Name()
}
