package workflow

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

func TestSubmitWithoutImageSkipsSubmitter(t *testing.T) {
	form := NewForm()
	form.SetAge("42")
	sub := &recordingSubmitter{}

	_, notice, err := form.Submit(context.Background(), sub)
	require.True(t, apperrors.IsCode(err, CodeMissingImage))
	require.Equal(t, NoticeMissingImage, *notice)
	require.Equal(t, 0, sub.callCount())
	require.Equal(t, StepUpload, form.Snapshot().Step)
}

func TestSubmitWithoutAgeSkipsSubmitter(t *testing.T) {
	for _, age := range []string{"", "0", "abc", "-4"} {
		form := NewForm()
		form.SelectImage(testImage())
		form.SetAge(age)
		sub := &recordingSubmitter{}

		_, notice, err := form.Submit(context.Background(), sub)
		require.True(t, apperrors.IsCode(err, CodeMissingAge), age)
		require.Equal(t, NoticeMissingAge, *notice)
		require.Equal(t, 0, sub.callCount())
	}
}

func TestSubmitSuccessMovesToResults(t *testing.T) {
	var (
		mu       sync.Mutex
		observed []int
	)
	form := NewForm(
		WithTickInterval(2*time.Millisecond),
		WithProgressObserver(func(p int) {
			mu.Lock()
			observed = append(observed, p)
			mu.Unlock()
		}),
	)
	form.SelectImage(testImage())
	form.SetAge("42")
	form.SetGender(diagnosis.GenderOther)
	sub := &recordingSubmitter{delay: 30 * time.Millisecond}

	result, notice, err := form.Submit(context.Background(), sub)
	require.NoError(t, err)
	require.Nil(t, notice)
	require.Equal(t, "Pneumonia", result.Disease)
	require.GreaterOrEqual(t, result.Confidence, 0.0)
	require.LessOrEqual(t, result.Confidence, 1.0)

	require.Equal(t, 1, sub.callCount())
	require.Equal(t, 42, sub.last.Age)
	require.Equal(t, diagnosis.GenderOther, sub.last.Gender)

	snap := form.Snapshot()
	require.Equal(t, StepResults, snap.Step)
	require.Equal(t, 100, snap.Progress)
	require.False(t, snap.Uploading)
	require.NotNil(t, snap.Results)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, observed[0])
	require.Equal(t, 100, observed[len(observed)-1])
	for _, p := range observed[:len(observed)-1] {
		require.LessOrEqual(t, p, diagnosis.ProgressCeiling)
	}
}

func TestSubmitFailureRaisesGenericNotice(t *testing.T) {
	form := NewForm(WithTickInterval(time.Millisecond))
	form.SelectImage(testImage())
	form.SetAge("30")
	sub := &recordingSubmitter{err: errors.New("connection refused")}

	_, notice, err := form.Submit(context.Background(), sub)
	require.True(t, apperrors.IsCode(err, CodeSubmissionFailed))
	require.Equal(t, NoticeUploadFailed, *notice)

	snap := form.Snapshot()
	require.Equal(t, StepUpload, snap.Step)
	require.False(t, snap.Uploading)
	require.Nil(t, snap.Results)
	require.NotNil(t, snap.Image)
}

func TestSubmitRejectsOutOfRangeConfidence(t *testing.T) {
	bad := diagnosis.MockResult()
	bad.Confidence = 1.5
	form := NewForm()
	form.SelectImage(testImage())
	form.SetAge("30")

	_, notice, err := form.Submit(context.Background(), SubmitterFunc(func(context.Context, diagnosis.Submission) (diagnosis.Result, error) {
		return bad, nil
	}))
	require.True(t, apperrors.IsCode(err, CodeSubmissionFailed))
	require.NotNil(t, notice)
}

func TestSubmitIsNotReentrant(t *testing.T) {
	form := NewForm()
	form.SelectImage(testImage())
	form.SetAge("30")
	release := make(chan struct{})
	started := make(chan struct{})

	blocking := SubmitterFunc(func(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error) {
		close(started)
		<-release
		return diagnosis.MockResult(), nil
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := form.Submit(context.Background(), blocking)
		done <- err
	}()
	<-started

	_, notice, err := form.Submit(context.Background(), &recordingSubmitter{})
	require.True(t, apperrors.IsCode(err, CodeSubmissionInProgress))
	require.Nil(t, notice)

	close(release)
	require.NoError(t, <-done)
}

func TestResetDropsInFlightSubmission(t *testing.T) {
	form := NewForm(WithTickInterval(time.Millisecond))
	form.SelectImage(testImage())
	form.SetAge("30")
	release := make(chan struct{})
	started := make(chan context.Context, 1)

	blocking := SubmitterFunc(func(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error) {
		started <- ctx
		<-release
		return diagnosis.MockResult(), nil
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := form.Submit(context.Background(), blocking)
		done <- err
	}()
	submitCtx := <-started

	form.Reset()
	require.ErrorIs(t, submitCtx.Err(), context.Canceled)

	// a fresh submission may start once the old one is abandoned
	form.SelectImage(testImage())
	form.SetAge("41")
	result, _, err := form.Submit(context.Background(), &recordingSubmitter{})
	require.NoError(t, err)
	require.Equal(t, "Pneumonia", result.Disease)

	close(release)
	require.True(t, apperrors.IsCode(<-done, CodeSubmissionDiscarded))

	snap := form.Snapshot()
	require.Equal(t, StepResults, snap.Step)
	require.Equal(t, "41", snap.Age)
	require.False(t, snap.Uploading)

	form.Reset()
	require.Equal(t, NewForm().Snapshot(), form.Snapshot())
}

func TestLateCompletionAfterResetLeavesInitialState(t *testing.T) {
	form := NewForm(WithTickInterval(time.Millisecond))
	form.SelectImage(testImage())
	form.SetAge("30")
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, _, err := form.Submit(context.Background(), SubmitterFunc(func(context.Context, diagnosis.Submission) (diagnosis.Result, error) {
			close(started)
			<-release
			return diagnosis.MockResult(), nil
		}))
		done <- err
	}()
	<-started

	form.Reset()
	close(release)
	require.True(t, apperrors.IsCode(<-done, CodeSubmissionDiscarded))
	require.Equal(t, NewForm().Snapshot(), form.Snapshot())
}

func TestResetRestoresInitialState(t *testing.T) {
	form := NewForm(WithTickInterval(time.Millisecond))
	form.SelectImage(testImage())
	form.SetAge("55")
	form.SetGender(diagnosis.GenderFemale)
	_, _, err := form.Submit(context.Background(), &recordingSubmitter{})
	require.NoError(t, err)

	form.Reset()

	snap := form.Snapshot()
	require.Nil(t, snap.Image)
	require.Equal(t, "", snap.Age)
	require.Equal(t, diagnosis.GenderMale, snap.Gender)
	require.Nil(t, snap.Results)
	require.Equal(t, 0, snap.Progress)
	require.Equal(t, StepUpload, snap.Step)
	require.Equal(t, NewForm().Snapshot(), snap)
}

func TestRenderShowsAllFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, diagnosis.MockResult()))

	out := buf.String()
	require.Contains(t, out, "Pneumonia")
	require.Contains(t, out, "93% (high confidence)")
	require.Contains(t, out, "Moderate [moderate]")
	require.Contains(t, out, "Follow up in 7 days.")
	require.Contains(t, out, "4. Monitor temperature regularly")
	require.Contains(t, out, "Dr. Sarah Johnson")
	require.Contains(t, out, "+1 (555) 123-4567")
}

func TestRenderConfidenceBuckets(t *testing.T) {
	cases := map[float64]string{
		0.75: "75% (medium confidence)",
		0.5:  "50% (low confidence)",
	}
	for confidence, want := range cases {
		res := diagnosis.MockResult()
		res.Confidence = confidence
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, res))
		require.Contains(t, buf.String(), want)
	}
}

func TestRenderProgress(t *testing.T) {
	require.Equal(t, "[#####.....]  50%", RenderProgress(50, 10))
	require.Equal(t, "[##########] 100%", RenderProgress(130, 10))
	require.Equal(t, "[..........]   0%", RenderProgress(-1, 10))
}

func testImage() diagnosis.ImageUpload {
	return diagnosis.ImageUpload{Filename: "chest.png", MimeType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n")}
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls int
	last  diagnosis.Submission
	delay time.Duration
	err   error
}

func (r *recordingSubmitter) Submit(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error) {
	r.mu.Lock()
	r.calls++
	r.last = sub
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return diagnosis.Result{}, r.err
	}
	return diagnosis.MockResult(), nil
}

func (r *recordingSubmitter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
