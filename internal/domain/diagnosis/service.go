package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
	"github.com/yanqian/xray-diagnosis/pkg/util"
)

// Progress simulation constants shared by the server stream and the form.
const (
	ProgressStep    = 5
	ProgressCeiling = 95
	ProgressDone    = 100
)

const (
	defaultProgressInterval = 150 * time.Millisecond
	defaultHistoryLimit     = 20
)

// AdvanceProgress moves simulated progress one step without passing the ceiling.
func AdvanceProgress(current int) int {
	next := current + ProgressStep
	if next > ProgressCeiling {
		return ProgressCeiling
	}
	return next
}

// Service exposes the X-ray analysis workflows.
type Service interface {
	Analyze(ctx context.Context, accountID int64, sub Submission) (Report, error)
	AnalyzeStream(ctx context.Context, accountID int64, sub Submission) (<-chan ProgressEvent, error)
	Get(ctx context.Context, accountID int64, id uuid.UUID) (Report, error)
	List(ctx context.Context, accountID int64, limit int) ([]Report, error)
	Image(ctx context.Context, accountID int64, id uuid.UUID) (io.ReadCloser, ImageRef, error)
}

type service struct {
	cfg      Config
	analyzer Analyzer
	storage  ImageStorage
	reports  ReportStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the analysis domain. accountID 0 marks an anonymous caller,
// whose image is not archived and whose report is not kept.
func NewService(cfg Config, analyzer Analyzer, storage ImageStorage, reports ReportStore, logger *slog.Logger) Service {
	return &service{
		cfg:      cfg,
		analyzer: analyzer,
		storage:  storage,
		reports:  reports,
		logger:   logger.With("component", "diagnosis.service"),
		now:      util.NowUTC,
	}
}

func (s *service) Analyze(ctx context.Context, accountID int64, sub Submission) (Report, error) {
	prepared, err := s.prepare(sub)
	if err != nil {
		return Report{}, err
	}
	return s.run(ctx, accountID, prepared)
}

func (s *service) AnalyzeStream(ctx context.Context, accountID int64, sub Submission) (<-chan ProgressEvent, error) {
	prepared, err := s.prepare(sub)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		report Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := s.run(ctx, accountID, prepared)
		done <- outcome{report: report, err: err}
	}()

	events := make(chan ProgressEvent, 1)
	go func() {
		defer close(events)
		emit := func(ev ProgressEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		ticker := time.NewTicker(s.progressInterval())
		defer ticker.Stop()
		progress := 0
		if !emit(ProgressEvent{Progress: progress}) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				next := AdvanceProgress(progress)
				if next == progress {
					continue
				}
				progress = next
				if !emit(ProgressEvent{Progress: progress}) {
					return
				}
			case out := <-done:
				if out.err != nil {
					emit(ProgressEvent{Progress: progress, Completed: true, Error: apperrors.MessageOf(out.err)})
					return
				}
				report := out.report
				emit(ProgressEvent{Progress: ProgressDone, Completed: true, Report: &report})
				return
			}
		}
	}()
	return events, nil
}

func (s *service) Get(ctx context.Context, accountID int64, id uuid.UUID) (Report, error) {
	report, found, err := s.reports.Get(ctx, id)
	if err != nil {
		return Report{}, apperrors.Wrap(CodeStorageError, "failed to load report", err)
	}
	if !found || report.AccountID != accountID {
		return Report{}, apperrors.Wrap(CodeNotFound, "report not found", nil)
	}
	return report, nil
}

// Image opens the archived upload behind a report the caller owns.
func (s *service) Image(ctx context.Context, accountID int64, id uuid.UUID) (io.ReadCloser, ImageRef, error) {
	report, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, ImageRef{}, err
	}
	if report.Image == nil || s.storage == nil {
		return nil, ImageRef{}, apperrors.Wrap(CodeNotFound, "report has no archived image", nil)
	}
	body, err := s.storage.Get(ctx, report.Image.Key)
	if errors.Is(err, ErrImageNotFound) {
		return nil, ImageRef{}, apperrors.Wrap(CodeNotFound, "archived image is gone", err)
	}
	if err != nil {
		return nil, ImageRef{}, apperrors.Wrap(CodeStorageError, "failed to open archived image", err)
	}
	return body, *report.Image, nil
}

func (s *service) List(ctx context.Context, accountID int64, limit int) ([]Report, error) {
	ceiling := s.cfg.HistoryLimit
	if ceiling <= 0 {
		ceiling = defaultHistoryLimit
	}
	if limit <= 0 || limit > ceiling {
		limit = ceiling
	}
	reports, err := s.reports.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, apperrors.Wrap(CodeStorageError, "failed to list reports", err)
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

// run expects a submission that already passed prepare.
func (s *service) run(ctx context.Context, accountID int64, sub Submission) (Report, error) {
	reportID := uuid.New()
	var image *ImageRef
	if accountID != 0 && s.storage != nil {
		key := fmt.Sprintf("xrays/%d/%s/%s", accountID, reportID.String(), sanitizeFilename(sub.Image.Filename))
		obj, err := s.storage.Put(ctx, key, sub.Image.Data, sub.Image.MimeType)
		if err != nil {
			return Report{}, apperrors.Wrap(CodeStorageError, "failed to archive image", err)
		}
		image = &ImageRef{Key: obj.Key, SizeBytes: obj.Size, MimeType: obj.MimeType, ETag: obj.ETag}
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, sub)
	if err == nil {
		if verr := result.Validate(); verr != nil {
			err = fmt.Errorf("analyzer returned an invalid result: %w", verr)
		}
	}
	if err != nil {
		s.discard(image)
		return Report{}, apperrors.Wrap(CodeAnalysisFailed, "failed to process x-ray", err)
	}
	s.logger.Info("x-ray analyzed",
		"report_id", reportID,
		"account_id", accountID,
		"disease", result.Disease,
		"confidence", result.Confidence,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	report := Report{
		ID:                reportID,
		AccountID:         accountID,
		Result:            result,
		ConfidenceLevel:   ConfidenceLevelFor(result.Confidence),
		ConfidencePercent: ConfidencePercent(result.Confidence),
		StageLevel:        StageLevelFor(result.Stage),
		Patient:           Patient{Age: sub.Age, Gender: sub.Gender},
		Image:             image,
		CreatedAt:         s.now(),
	}
	if accountID != 0 && s.reports != nil {
		if err := s.reports.Save(ctx, report, s.cfg.HistoryTTL); err != nil {
			s.logger.Warn("save report failed", "report_id", reportID, "error", err)
		}
	}
	return report, nil
}

// discard drops an archived image whose analysis never produced a report.
func (s *service) discard(image *ImageRef) {
	if image == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.storage.Delete(ctx, image.Key); err != nil {
		s.logger.Warn("discard archived image failed", "key", image.Key, "error", err)
	}
}

func (s *service) progressInterval() time.Duration {
	if s.cfg.ProgressInterval > 0 {
		return s.cfg.ProgressInterval
	}
	return defaultProgressInterval
}
