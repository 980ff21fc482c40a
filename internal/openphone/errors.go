package openphone

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxContentLength is the longest message body the API accepts, in characters.
const MaxContentLength = 1600

// ValidationError is returned for requests rejected before anything is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError is returned when a request fails on the wire or the server
// answers with a non-success status. StatusCode is 0 for network failures.
type TransportError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("OpenPhone API error [%s]: %v", e.Op, e.Err)
	}
	msg := fmt.Sprintf("OpenPhone API error [%s]: %d %s.", e.Op, e.StatusCode, e.Status)
	if e.Body != "" {
		msg += " " + e.Body
	}
	if e.Err != nil {
		msg += " " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidateSend checks a send request the same way the API does.
// Content length is counted in characters, not bytes.
func ValidateSend(p SendMessageParams) error {
	if strings.TrimSpace(p.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(p.Content) > MaxContentLength {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("must be between 1 and %d characters", MaxContentLength)}
	}
	if p.From == "" {
		return &ValidationError{Field: "from", Reason: "sender phone number is required"}
	}
	if len(p.To) == 0 {
		return &ValidationError{Field: "to", Reason: "at least one recipient is required"}
	}
	for _, to := range p.To {
		if to == "" {
			return &ValidationError{Field: "to", Reason: "recipient must not be empty"}
		}
	}
	return nil
}

func validateListMessages(p ListMessagesParams) error {
	if p.PhoneNumberID == "" {
		return &ValidationError{Field: "phoneNumberId", Reason: "is required"}
	}
	if len(p.Participants) == 0 {
		return &ValidationError{Field: "participants", Reason: "at least one participant is required"}
	}
	return nil
}
