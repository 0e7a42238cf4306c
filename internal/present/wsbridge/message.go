package wsbridge

// Outbound message types.
const (
	TypeWelcome  = "welcome"
	TypeStep     = "step"
	TypeComplete = "complete"
	TypeProgress = "progress"
	TypeFeedback = "feedback"
	TypeStatus   = "status"
	TypeCue      = "cue"
	TypeError    = "error"
)

// Inbound message types.
const (
	TypeCommand    = "command"
	TypeTranscript = "transcript"
)

// Message is the JSON frame exchanged with clients.
type Message struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	Listening *bool  `json:"listening,omitempty"`

	// Command is set on inbound command messages.
	Command string `json:"command,omitempty"`
}
