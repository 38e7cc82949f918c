package tools

// Tool names declared to the remote model.
const (
	NameNavigate     = "navigate_to_view"
	NameComposeEmail = "compose_email"
	NameSelectVoice  = "select_voice_by_number"
)

// Declaration describes a tool to the remote model.
type Declaration struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`
}

// Request is one function call emitted by the remote model.
type Request struct {
	// ID correlates the Response with this call.
	ID string

	// Name is the tool being invoked.
	Name string

	// Args holds the decoded JSON arguments.
	Args map[string]any
}

// Status classifies a dispatch outcome for logs and metrics. It is not
// sent to the remote model.
type Status string

const (
	StatusOK      Status = "ok"
	StatusInvalid Status = "invalid"
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"
)

// Response is the single result sent back for a Request.
type Response struct {
	ID     string
	Name   string
	Result string
	Status Status `json:"-"`
}

// Declarations returns the registry declared when the session opens.
// Voice count bounds the ordinal accepted by select_voice_by_number.
func Declarations(views []string, voiceCount int) []Declaration {
	viewProp := map[string]any{
		"type":        "string",
		"description": "The view to open.",
	}
	if len(views) > 0 {
		viewProp["enum"] = views
	}

	return []Declaration{
		{
			Name:        NameNavigate,
			Description: "Navigate the user interface to one of the available views.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"view": viewProp,
				},
				"required": []string{"view"},
			},
		},
		{
			Name:        NameComposeEmail,
			Description: "Open an email draft addressed to a recipient with a subject and body.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to":      map[string]any{"type": "string", "description": "Recipient email address."},
					"subject": map[string]any{"type": "string", "description": "Subject line."},
					"body":    map[string]any{"type": "string", "description": "Message body."},
				},
				"required": []string{"subject", "body"},
			},
		},
		{
			Name:        NameSelectVoice,
			Description: "Switch the assistant voice to the given 1-based number from the voice list.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"number": map[string]any{
						"type":        "integer",
						"description": "Voice number between 1 and the number of voices.",
						"minimum":     1,
						"maximum":     voiceCount,
					},
				},
				"required": []string{"number"},
			},
		},
	}
}
