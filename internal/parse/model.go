package parse

// Kind tags which variant a Message carries.
type Kind string

const (
	KindText   Kind = "text"
	KindUnsent Kind = "unsent"
)

// UnsentText is the body stored for retracted messages.
const UnsentText = "[Message unsent]"

// TapbackKind is one of the fixed reaction names the exporter writes.
type TapbackKind string

const (
	Loved      TapbackKind = "Loved"
	Liked      TapbackKind = "Liked"
	Disliked   TapbackKind = "Disliked"
	LaughedAt  TapbackKind = "Laughed at"
	Emphasized TapbackKind = "Emphasized"
	Questioned TapbackKind = "Questioned"
)

// Message is one transcript message, identified by its 0-based source line.
//
// Exactly one of Text and Unsent is set, matching Kind.
type Message struct {
	Line      int
	Timestamp string
	Sender    string
	IsFromMe  bool
	Indent    int
	Duplicate bool
	Kind      Kind

	// ProvisionalParent is the indentation-stack candidate picked while
	// parsing. Parent is the backward-scan result from ResolveParents and
	// is the one persisted.
	ProvisionalParent *int
	Parent            *int

	Text   *TextBody
	Unsent *UnsentBody
}

// TextBody holds the fields only a regular message can have.
type TextBody struct {
	Body        string
	ReadReceipt *ReadReceipt
	Edit        *Edit
	Effect      string // "Sent with ..." label
	Attachments []AttachmentRef
}

// UnsentBody marks a retracted message. The exporter records nothing
// besides who unsent it, which lives on Message.Sender.
type UnsentBody struct{}

// Body returns the stored message text.
func (m *Message) Body() string {
	if m.Kind == KindUnsent {
		return UnsentText
	}
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}

// ReadReceipt is the "(Read by them after 2 minutes)" annotation.
type ReadReceipt struct {
	ReadBy string `json:"read_by"` // "them" or "you"
	After  string `json:"duration"`
}

// Edit is the "Edited 2 minutes later: ..." annotation.
type Edit struct {
	After string // the numeric part, e.g. "2"
	Unit  string // second, minute or hour
	Text  string
}

// AttachmentRef is an attachment line as it appeared in the transcript.
type AttachmentRef struct {
	Filename  string
	DirNumber string
	Sticker   bool
	Line      string
}

// Attachment is an AttachmentRef resolved against the attachment index.
// RelPath and Size are nil when the file was not found on disk.
type Attachment struct {
	MessageLine int
	Filename    string
	DirNumber   string
	RelPath     *string
	Size        *int64
	Sticker     bool
	MIME        string
}

// Tapback is a reaction to the message at TargetLine.
type Tapback struct {
	TargetLine int
	Sender     string
	Kind       TapbackKind
	IsFromMe   bool
}

// Result is everything parsed from one transcript.
type Result struct {
	Target      string
	Messages    []Message
	Attachments []Attachment
	Tapbacks    []Tapback
}

// FirstTimestamp and LastTimestamp return the timestamps of the first and
// last messages in file order.
func (r *Result) FirstTimestamp() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].Timestamp
}

func (r *Result) LastTimestamp() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Timestamp
}
