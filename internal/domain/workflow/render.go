package workflow

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
)

var confidenceLabels = map[diagnosis.ConfidenceLevel]string{
	diagnosis.ConfidenceHigh:   "high confidence",
	diagnosis.ConfidenceMedium: "medium confidence",
	diagnosis.ConfidenceLow:    "low confidence",
}

// Render writes a read-only view of a diagnosis result.
func Render(w io.Writer, result diagnosis.Result) error {
	level := diagnosis.ConfidenceLevelFor(result.Confidence)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "Diagnosis Results")
	fmt.Fprintln(tw, strings.Repeat("=", 17))
	fmt.Fprintf(tw, "Disease:\t%s\n", result.Disease)
	fmt.Fprintf(tw, "Confidence:\t%d%% (%s)\n", diagnosis.ConfidencePercent(result.Confidence), confidenceLabels[level])
	fmt.Fprintf(tw, "Stage:\t%s [%s]\n", result.Stage, diagnosis.StageLevelFor(result.Stage))
	fmt.Fprintf(tw, "Advice:\t%s\n", result.Advice)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.PrecautionTips) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Precaution tips:")
		for i, tip := range result.PrecautionTips {
			fmt.Fprintf(w, "  %d. %s\n", i+1, tip)
		}
	}

	doc := result.DoctorRecommendation
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Recommended specialist:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Name:\t%s\n", doc.Name)
	fmt.Fprintf(tw, "  Specialty:\t%s\n", doc.Specialty)
	fmt.Fprintf(tw, "  Hospital:\t%s\n", doc.Hospital)
	fmt.Fprintf(tw, "  Contact:\t%s\n", doc.Contact)
	return tw.Flush()
}

// RenderProgress draws a fixed width progress bar, e.g. "[#####.....]  50%".
func RenderProgress(progress, width int) string {
	if width <= 0 {
		width = 20
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), progress)
}
