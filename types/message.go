package types

// EmailRecord is one accepted inbound message. User and LocalPart are
// denormalized so inbox reads never join against the alias database.
type EmailRecord struct {
	BaseDocument
	User      string `json:"user"`
	LocalPart string `json:"local_part"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Date      int64  `json:"date"` // sender-declared Date header, unix millis
	BodyText  string `json:"body_text"`
	BodyHTML  string `json:"body_html"`
	RawKey    string `json:"raw_key,omitempty"` // S3 key of the archived raw message
	Size      int64  `json:"size"`
	Created   int64  `json:"created"`
}

// InboundMessage is what the inbound transport hands over per message.
type InboundMessage struct {
	From    string
	To      string
	RawSize int64
	Raw     []byte
}

// ParsedMail is the structured result of the MIME collaborator.
type ParsedMail struct {
	Subject string
	From    string
	Date    int64
	Text    string
	HTML    string
}

// Terminal outcomes of inbound processing. A temporary rejection tells
// the upstream transport to retry instead of bouncing.
const (
	RejectBadRecipient     = "bad recipient"
	RejectUnknownRecipient = "unknown recipient"
	RejectTooLarge         = "too large"
	RejectTemporary        = "temporary processing error"
)

type InboundResult struct {
	Accepted  bool
	Reason    string // reject reason when not accepted
	Temporary bool   // retryable rejection
	EmailID   string
}
