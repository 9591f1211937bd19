package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

// Step is the visible stage of the two-step workflow.
type Step string

const (
	StepUpload  Step = "upload"
	StepResults Step = "results"
)

// Error codes returned by Submit.
const (
	CodeMissingImage         = "missing_image"
	CodeMissingAge           = "missing_age"
	CodeSubmissionFailed     = "submission_failed"
	CodeSubmissionInProgress = "submission_in_progress"
	CodeSubmissionDiscarded  = "submission_discarded"
)

const defaultTickInterval = 150 * time.Millisecond

// Submitter sends a submission for analysis.
type Submitter interface {
	Submit(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error)

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error) {
	return f(ctx, sub)
}

// Form holds the ephemeral state of one upload-and-review session.
type Form struct {
	mu        sync.Mutex
	image     *diagnosis.ImageUpload
	age       string
	gender    diagnosis.Gender
	progress  int
	uploading bool
	results   *diagnosis.Result
	step      Step

	// gen changes on every Submit and Reset; a submission only writes back
	// while it still owns the current generation.
	gen    uint64
	cancel context.CancelFunc

	tick       time.Duration
	onProgress func(int)
	logger     *slog.Logger
}

// Option customizes a Form.
type Option func(*Form)

// WithTickInterval overrides how often simulated progress advances.
func WithTickInterval(d time.Duration) Option {
	return func(f *Form) {
		if d > 0 {
			f.tick = d
		}
	}
}

// WithProgressObserver registers a callback invoked on every progress change.
func WithProgressObserver(fn func(progress int)) Option {
	return func(f *Form) { f.onProgress = fn }
}

// WithLogger attaches a logger for submission failures.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger.With("component", "workflow.form")
		}
	}
}

// NewForm returns a form in its initial state.
func NewForm(opts ...Option) *Form {
	f := &Form{
		gender: diagnosis.DefaultGender,
		step:   StepUpload,
		tick:   defaultTickInterval,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SelectImage stores the chosen image.
func (f *Form) SelectImage(img diagnosis.ImageUpload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = &img
}

// SetAge records the age exactly as typed.
func (f *Form) SetAge(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.age = raw
}

// SetGender records the gender selection.
func (f *Form) SetGender(g diagnosis.Gender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gender = g
}

// Snapshot is a copy of the form state.
type Snapshot struct {
	Image     *diagnosis.ImageUpload
	Age       string
	Gender    diagnosis.Gender
	Progress  int
	Uploading bool
	Results   *diagnosis.Result
	Step      Step
}

// Snapshot returns the current state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{
		Age:       f.age,
		Gender:    f.gender,
		Progress:  f.progress,
		Uploading: f.uploading,
		Step:      f.step,
	}
	if f.image != nil {
		img := *f.image
		snap.Image = &img
	}
	if f.results != nil {
		res := *f.results
		snap.Results = &res
	}
	return snap
}

// Submit validates the form, sends it and moves to the results step on success.
// Validation failures never reach the submitter.
func (f *Form) Submit(ctx context.Context, submitter Submitter) (diagnosis.Result, *Notice, error) {
	f.mu.Lock()
	if f.uploading {
		f.mu.Unlock()
		return diagnosis.Result{}, nil, apperrors.Wrap(CodeSubmissionInProgress, "a submission is already in progress", nil)
	}
	if f.image == nil || f.image.Empty() {
		f.mu.Unlock()
		return diagnosis.Result{}, notice(NoticeMissingImage), apperrors.Wrap(CodeMissingImage, "image is required", nil)
	}
	age, ok := diagnosis.ParseAge(f.age)
	if !ok {
		f.mu.Unlock()
		return diagnosis.Result{}, notice(NoticeMissingAge), apperrors.Wrap(CodeMissingAge, "age is required", nil)
	}
	sub := diagnosis.Submission{Image: *f.image, Age: age, Gender: f.gender}
	f.uploading = true
	f.gen++
	gen := f.gen
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()
	defer cancel()
	f.setProgress(gen, 0)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.simulateProgress(gen, stop)
	}()

	result, err := submitter.Submit(runCtx, sub)
	close(stop)
	wg.Wait()

	if err == nil {
		err = result.Validate()
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return diagnosis.Result{}, nil, apperrors.Wrap(CodeSubmissionDiscarded, "submission discarded by reset", err)
	}
	f.cancel = nil
	f.uploading = false
	if err != nil {
		f.mu.Unlock()
		f.logger.Error("submission failed", "error", err)
		return diagnosis.Result{}, notice(NoticeUploadFailed), apperrors.Wrap(CodeSubmissionFailed, "submission failed", err)
	}
	f.progress = diagnosis.ProgressDone
	f.results = &result
	f.step = StepResults
	observer := f.onProgress
	f.mu.Unlock()
	if observer != nil {
		observer(diagnosis.ProgressDone)
	}
	return result, nil, nil
}

// Reset clears every field and returns to the upload step. A submission still
// in flight is cancelled and its outcome dropped.
func (f *Form) Reset() {
	f.mu.Lock()
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.image = nil
	f.age = ""
	f.gender = diagnosis.DefaultGender
	f.results = nil
	f.step = StepUpload
	f.uploading = false
	f.progress = 0
	observer := f.onProgress
	f.mu.Unlock()
	if observer != nil {
		observer(0)
	}
}

func (f *Form) simulateProgress(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.mu.Lock()
			current := f.progress
			f.mu.Unlock()
			if next := diagnosis.AdvanceProgress(current); next != current {
				f.setProgress(gen, next)
			}
		}
	}
}

// setProgress is a no-op once gen is no longer current.
func (f *Form) setProgress(gen uint64, value int) {
	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return
	}
	f.progress = value
	observer := f.onProgress
	f.mu.Unlock()
	if observer != nil {
		observer(value)
	}
}
