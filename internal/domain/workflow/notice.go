package workflow

// Variant styles a notice.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a short user facing message raised by the workflow.
type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

var (
	NoticeMissingImage = Notice{
		Title:       "Missing image",
		Description: "Please upload an X-ray image to continue.",
		Variant:     VariantDestructive,
	}
	NoticeMissingAge = Notice{
		Title:       "Missing information",
		Description: "Please enter the patient's age to continue.",
		Variant:     VariantDestructive,
	}
	NoticeUploadFailed = Notice{
		Title:       "Upload failed",
		Description: "There was an error processing your request. Please try again.",
		Variant:     VariantDestructive,
	}
)

func notice(n Notice) *Notice {
	return &n
}

// String renders the notice on one line.
func (n Notice) String() string {
	return n.Title + ": " + n.Description
}
