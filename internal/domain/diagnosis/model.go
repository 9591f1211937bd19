package diagnosis

import (
	"time"

	"github.com/google/uuid"
)

// Result is the fixed-shape record produced by the analysis endpoint.
type Result struct {
	Disease              string               `json:"disease"`
	Confidence           float64              `json:"confidence"`
	Stage                string               `json:"stage"`
	Advice               string               `json:"advice"`
	PrecautionTips       []string             `json:"precautionTips"`
	DoctorRecommendation DoctorRecommendation `json:"doctorRecommendation"`
}

// DoctorRecommendation names the specialist suggested for follow up.
type DoctorRecommendation struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Hospital  string `json:"hospital"`
	Contact   string `json:"contact"`
}

// Gender is the patient gender label collected by the form.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// DefaultGender is preselected on a fresh form.
const DefaultGender = GenderMale

// ImageUpload is the raw X-ray image as received from the client.
type ImageUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// Empty reports whether no image bytes were supplied.
func (i ImageUpload) Empty() bool {
	return len(i.Data) == 0
}

// Submission bundles the inputs of one analysis request.
type Submission struct {
	Image  ImageUpload
	Age    int
	Gender Gender
}

// Patient is the non-image part of a submission kept on the report.
type Patient struct {
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
}

// ImageRef points at the archived copy of the submitted image.
type ImageRef struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
	ETag      string `json:"etag,omitempty"`
}

// Report is a Result enriched with the presentation buckets and bookkeeping.
type Report struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         int64           `json:"accountId,omitempty"`
	Result            Result          `json:"result"`
	ConfidenceLevel   ConfidenceLevel `json:"confidenceLevel"`
	ConfidencePercent int             `json:"confidencePercent"`
	StageLevel        StageLevel      `json:"stageLevel"`
	Patient           Patient         `json:"patient"`
	Image             *ImageRef       `json:"image,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// ProgressEvent is emitted while a streamed analysis is running.
type ProgressEvent struct {
	Progress  int     `json:"progress"`
	Completed bool    `json:"completed"`
	Report    *Report `json:"report,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Config drives validation limits and the simulated analysis timing.
type Config struct {
	MockDelay        time.Duration
	ProgressInterval time.Duration
	MaxImageBytes    int64
	MaxAge           int
	HistoryTTL       time.Duration
	HistoryLimit     int
}
