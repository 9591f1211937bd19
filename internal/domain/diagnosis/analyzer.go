package diagnosis

import (
	"context"
	"time"
)

// Analyzer turns a validated submission into a Result.
type Analyzer interface {
	Analyze(ctx context.Context, sub Submission) (Result, error)
}

// MockResult is the record returned for every submission by the demo analyzer.
func MockResult() Result {
	return Result{
		Disease:    "Pneumonia",
		Confidence: 0.93,
		Stage:      "Moderate",
		Advice:     "Rest, hydration, and prescribed antibiotics. Follow up in 7 days.",
		PrecautionTips: []string{
			"Stay hydrated",
			"Avoid cold exposure",
			"Follow medication schedule",
			"Monitor temperature regularly",
		},
		DoctorRecommendation: DoctorRecommendation{
			Name:      "Dr. Sarah Johnson",
			Specialty: "Pulmonology",
			Hospital:  "Central Medical Center",
			Contact:   "+1 (555) 123-4567",
		},
	}
}

// MockAnalyzer waits a fixed delay and answers with MockResult regardless of input.
type MockAnalyzer struct {
	delay time.Duration
}

// NewMockAnalyzer constructs the demo analyzer.
func NewMockAnalyzer(delay time.Duration) *MockAnalyzer {
	return &MockAnalyzer{delay: delay}
}

// Analyze blocks for the configured delay unless ctx ends first.
func (a *MockAnalyzer) Analyze(ctx context.Context, _ Submission) (Result, error) {
	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	return MockResult(), nil
}

var _ Analyzer = (*MockAnalyzer)(nil)
