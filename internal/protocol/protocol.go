// Package protocol implements the typed wire codec for the chat protocol.
//
// Every frame in either direction is a JSON envelope {method, payload}. The
// request and response sets are closed: encoding validates outbound values
// before serialization, and decoding discriminates inbound frames against
// the known methods and rejects anything malformed before it can reach
// conversation state.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wirechat/wirechat/internal/domain"
)

// Method tags for the closed request/response sets.
const (
	MethodConversationList = "ConversationList"
	MethodPing             = "Ping"
	MethodCompletion       = "Completion"
	MethodLoad             = "Load"
	MethodSystemPrompt     = "SystemPrompt"
	MethodFork             = "Fork"
)

// Envelope is the outer frame for all protocol messages.
type Envelope struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// validationErr wraps a description in domain.ErrValidation so callers can
// errors.Is against a single sentinel.
func validationErr(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrValidation)...)
}
