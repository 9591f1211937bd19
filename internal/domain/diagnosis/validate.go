package diagnosis

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/yanqian/xray-diagnosis/pkg/errors"
)

// Error codes surfaced by the diagnosis domain.
const (
	CodeMissingImage   = "missing_image"
	CodeMissingAge     = "missing_age"
	CodeMissingGender  = "missing_gender"
	CodeInvalidInput   = "invalid_input"
	CodeAnalysisFailed = "analysis_failed"
	CodeStorageError   = "storage_error"
	CodeNotFound       = "not_found"
)

// ParseAge accepts a positive whole number, surrounding spaces allowed.
func ParseAge(raw string) (int, bool) {
	age, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || age <= 0 {
		return 0, false
	}
	return age, true
}

// ParseGender normalizes a gender label; unknown labels are rejected.
func ParseGender(raw string) (Gender, bool) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(raw))); g {
	case GenderMale, GenderFemale, GenderOther:
		return g, true
	default:
		return "", false
	}
}

// IsMissingField reports whether err is one of the required-field failures.
func IsMissingField(err error) bool {
	switch apperrors.CodeOf(err) {
	case CodeMissingImage, CodeMissingAge, CodeMissingGender:
		return true
	}
	return false
}

func (s *service) prepare(sub Submission) (Submission, error) {
	if sub.Image.Empty() {
		return Submission{}, apperrors.Wrap(CodeMissingImage, "image is required", nil)
	}
	if sub.Age <= 0 {
		return Submission{}, apperrors.Wrap(CodeMissingAge, "age is required", nil)
	}
	if s.cfg.MaxAge > 0 && sub.Age > s.cfg.MaxAge {
		return Submission{}, apperrors.Wrap(CodeInvalidInput, "age is out of range", nil)
	}
	if strings.TrimSpace(string(sub.Gender)) == "" {
		return Submission{}, apperrors.Wrap(CodeMissingGender, "gender is required", nil)
	}
	gender, ok := ParseGender(string(sub.Gender))
	if !ok {
		return Submission{}, apperrors.Wrap(CodeInvalidInput, "gender must be male, female, or other", nil)
	}
	sub.Gender = gender
	if s.cfg.MaxImageBytes > 0 && int64(len(sub.Image.Data)) > s.cfg.MaxImageBytes {
		return Submission{}, apperrors.Wrap(CodeInvalidInput, "image exceeds maximum allowed size", nil)
	}
	mime := strings.TrimSpace(sub.Image.MimeType)
	if mime == "" || strings.EqualFold(mime, "application/octet-stream") {
		mime = http.DetectContentType(sub.Image.Data)
	}
	if !strings.HasPrefix(strings.ToLower(mime), "image/") {
		return Submission{}, apperrors.Wrap(CodeInvalidInput, "uploaded file must be an image", nil)
	}
	sub.Image.MimeType = mime
	return sub, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." || name == ".." {
		return "xray"
	}
	return name
}
