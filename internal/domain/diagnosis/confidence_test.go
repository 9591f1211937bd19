package diagnosis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfidenceLevelFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       ConfidenceLevel
	}{
		{0.93, ConfidenceHigh},
		{0.9, ConfidenceHigh},
		{1, ConfidenceHigh},
		{0.75, ConfidenceMedium},
		{0.7, ConfidenceMedium},
		{0.8999, ConfidenceMedium},
		{0.5, ConfidenceLow},
		{0.6999, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ConfidenceLevelFor(tc.confidence), "confidence %v", tc.confidence)
	}
}

func TestConfidencePercentRounds(t *testing.T) {
	require.Equal(t, 93, ConfidencePercent(0.93))
	require.Equal(t, 76, ConfidencePercent(0.756))
	require.Equal(t, 0, ConfidencePercent(0))
	require.Equal(t, 100, ConfidencePercent(1))
}

func TestStageLevelFor(t *testing.T) {
	require.Equal(t, StageEarly, StageLevelFor("Early onset"))
	require.Equal(t, StageModerate, StageLevelFor("Moderate"))
	require.Equal(t, StageAdvanced, StageLevelFor("ADVANCED"))
	require.Equal(t, StageAdvanced, StageLevelFor("severe bilateral"))
	require.Equal(t, StageUnspecified, StageLevelFor("Stage II"))
	require.Equal(t, StageUnspecified, StageLevelFor(""))
}

func TestResultValidate(t *testing.T) {
	require.NoError(t, MockResult().Validate())

	tooHigh := MockResult()
	tooHigh.Confidence = 1.2
	require.Error(t, tooHigh.Validate())

	negative := MockResult()
	negative.Confidence = -0.1
	require.Error(t, negative.Validate())

	nan := MockResult()
	nan.Confidence = math.NaN()
	require.Error(t, nan.Validate())

	noDisease := MockResult()
	noDisease.Disease = " "
	require.Error(t, noDisease.Validate())

	noDoctor := MockResult()
	noDoctor.DoctorRecommendation.Name = ""
	require.Error(t, noDoctor.Validate())
}

func TestMockResultShape(t *testing.T) {
	res := MockResult()
	require.Equal(t, "Pneumonia", res.Disease)
	require.Equal(t, 0.93, res.Confidence)
	require.Equal(t, "Moderate", res.Stage)
	require.Len(t, res.PrecautionTips, 4)
	require.Equal(t, "Stay hydrated", res.PrecautionTips[0])
	require.Equal(t, "Pulmonology", res.DoctorRecommendation.Specialty)
}

func TestParseAge(t *testing.T) {
	age, ok := ParseAge(" 42 ")
	require.True(t, ok)
	require.Equal(t, 42, age)

	for _, raw := range []string{"", "0", "-3", "42abc", "4.5", "abc"} {
		_, ok := ParseAge(raw)
		require.False(t, ok, raw)
	}
}

func TestParseGender(t *testing.T) {
	g, ok := ParseGender(" Female ")
	require.True(t, ok)
	require.Equal(t, GenderFemale, g)

	_, ok = ParseGender("unknown")
	require.False(t, ok)
}

func TestAdvanceProgressCapsAtCeiling(t *testing.T) {
	require.Equal(t, 5, AdvanceProgress(0))
	require.Equal(t, 95, AdvanceProgress(90))
	require.Equal(t, 95, AdvanceProgress(93))
	require.Equal(t, 95, AdvanceProgress(95))
}
