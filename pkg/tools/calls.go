package tools

import (
	"math"
	"strconv"
	"strings"
)

// Call is a parsed, validated tool invocation. The set of implementations is
// closed: Navigate, ComposeEmail and SelectVoice.
type Call interface {
	toolName() string
}

// Navigate switches the dashboard to View.
type Navigate struct {
	View string
}

// ComposeEmail opens an email draft.
type ComposeEmail struct {
	To      string
	Subject string
	Body    string
}

// SelectVoice picks the voice at 1-based position Number.
type SelectVoice struct {
	Number int
}

func (Navigate) toolName() string     { return NameNavigate }
func (ComposeEmail) toolName() string { return NameComposeEmail }
func (SelectVoice) toolName() string  { return NameSelectVoice }

// Parse converts a Request into its call variant. Unknown names return
// ErrUnknownTool; bad arguments return *ArgumentError.
func Parse(req Request) (Call, error) {
	switch req.Name {
	case NameNavigate:
		view, err := stringArg(req, "view", true)
		if err != nil {
			return nil, err
		}
		return Navigate{View: view}, nil

	case NameComposeEmail:
		to, err := stringArg(req, "to", false)
		if err != nil {
			return nil, err
		}
		subject, err := stringArg(req, "subject", false)
		if err != nil {
			return nil, err
		}
		body, err := stringArg(req, "body", false)
		if err != nil {
			return nil, err
		}
		return ComposeEmail{To: to, Subject: subject, Body: body}, nil

	case NameSelectVoice:
		n, err := intArg(req, "number")
		if err != nil {
			return nil, err
		}
		return SelectVoice{Number: n}, nil

	default:
		return nil, ErrUnknownTool
	}
}

func stringArg(req Request, name string, required bool) (string, error) {
	v, ok := req.Args[name]
	if !ok || v == nil {
		if required {
			return "", &ArgumentError{Tool: req.Name, Arg: name, Reason: "is required"}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Tool: req.Name, Arg: name, Reason: "must be a string"}
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", &ArgumentError{Tool: req.Name, Arg: name, Reason: "is required"}
	}
	return s, nil
}

// intArg accepts JSON numbers (decoded as float64), Go integers, and
// numeric strings, since models are loose about argument types.
func intArg(req Request, name string) (int, error) {
	v, ok := req.Args[name]
	if !ok || v == nil {
		return 0, &ArgumentError{Tool: req.Name, Arg: name, Reason: "is required"}
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, &ArgumentError{Tool: req.Name, Arg: name, Reason: "must be a whole number"}
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, &ArgumentError{Tool: req.Name, Arg: name, Reason: "must be a whole number"}
		}
		return i, nil
	default:
		return 0, &ArgumentError{Tool: req.Name, Arg: name, Reason: "must be a whole number"}
	}
}
