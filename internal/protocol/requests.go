package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wirechat/wirechat/internal/domain/chat"
)

// Request is the closed set of outbound frames. Implementations live in this
// package only.
type Request interface {
	method() string
	validate() error
}

// ConversationListRequest asks the server for the conversation directory.
type ConversationListRequest struct{}

func (ConversationListRequest) method() string  { return MethodConversationList }
func (ConversationListRequest) validate() error { return nil }

// PingRequest is a keepalive probe.
type PingRequest struct {
	Body string `json:"body"`
}

func (PingRequest) method() string { return MethodPing }

func (r PingRequest) validate() error {
	if r.Body == "" {
		return validationErr("ping body is required")
	}
	return nil
}

// CompletionRequest carries the full updated conversation for the server to
// complete. The trailing message is the assistant placeholder to fill.
type CompletionRequest struct {
	Conversation chat.Conversation `json:"conversation"`
}

func (CompletionRequest) method() string { return MethodCompletion }

func (r CompletionRequest) validate() error {
	if len(r.Conversation.Messages) == 0 {
		return validationErr("completion conversation has no messages")
	}
	if err := r.Conversation.Validate(); err != nil {
		return validationErr("completion conversation: %v", err)
	}
	return nil
}

// LoadRequest asks the server for a stored conversation by id.
type LoadRequest struct {
	ID int64 `json:"id"`
}

func (LoadRequest) method() string { return MethodLoad }

func (r LoadRequest) validate() error {
	if r.ID < 0 {
		return validationErr("load id %d is negative", r.ID)
	}
	return nil
}

// SystemPromptRequest reads (write=false) or persists (write=true) the
// system prompt.
type SystemPromptRequest struct {
	Content string `json:"content"`
	Write   bool   `json:"write"`
}

func (SystemPromptRequest) method() string  { return MethodSystemPrompt }
func (SystemPromptRequest) validate() error { return nil }

// ForkRequest instructs the server to branch a stored conversation at the
// given cut sequence.
type ForkRequest struct {
	ConversationID int64 `json:"conversationId"`
	Sequence       int   `json:"sequence"`
}

func (ForkRequest) method() string { return MethodFork }

func (r ForkRequest) validate() error {
	if r.Sequence < 0 {
		return validationErr("fork sequence %d is negative", r.Sequence)
	}
	return nil
}

// DecodeRequest parses raw bytes into one of the closed request shapes.
// The reference server uses this with the same drop-and-log discipline the
// client applies to responses.
func DecodeRequest(data []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, validationErr("parse envelope: %v", err)
	}

	switch env.Method {
	case MethodConversationList:
		return ConversationListRequest{}, nil

	case MethodPing:
		var w wirePing
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Body == nil {
			return nil, validationErr("%s request missing body", env.Method)
		}
		return PingRequest{Body: *w.Body}, nil

	case MethodCompletion:
		var w struct {
			Conversation *wireConversation `json:"conversation"`
		}
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Conversation == nil {
			return nil, validationErr("%s request missing conversation", env.Method)
		}
		conv, err := w.Conversation.toChat()
		if err != nil {
			return nil, err
		}
		req := CompletionRequest{Conversation: conv}
		if err := req.validate(); err != nil {
			return nil, err
		}
		return req, nil

	case MethodLoad:
		var w struct {
			ID *int64 `json:"id"`
		}
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.ID == nil {
			return nil, validationErr("%s request missing id", env.Method)
		}
		return LoadRequest{ID: *w.ID}, nil

	case MethodSystemPrompt:
		var w wireSystemPrompt
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Content == nil || w.Write == nil {
			return nil, validationErr("%s request missing required field", env.Method)
		}
		return SystemPromptRequest{Content: *w.Content, Write: *w.Write}, nil

	case MethodFork:
		var w struct {
			ConversationID *int64 `json:"conversationId"`
			Sequence       *int   `json:"sequence"`
		}
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.ConversationID == nil || w.Sequence == nil {
			return nil, validationErr("%s request missing required field", env.Method)
		}
		req := ForkRequest{ConversationID: *w.ConversationID, Sequence: *w.Sequence}
		if err := req.validate(); err != nil {
			return nil, err
		}
		return req, nil

	default:
		return nil, validationErr("unknown request method %q", env.Method)
	}
}

// EncodeRequest validates req and serializes it to its wire form.
// Schema-violating values fail with domain.ErrValidation and are never
// transmitted.
func EncodeRequest(req Request) ([]byte, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	env := Envelope{Method: req.method()}
	if _, ok := req.(ConversationListRequest); !ok {
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", req.method(), err)
		}
		env.Payload = payload
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", req.method(), err)
	}
	return data, nil
}
