package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wirechat/wirechat/internal/domain/chat"
)

// Response is the closed set of inbound frames. Implementations live in this
// package only, so facade dispatch is an exhaustive type switch.
type Response interface {
	method() string
}

// ConversationListResponse carries the conversation directory. Conversations
// include their full message logs so a pending Load can be resolved from it.
type ConversationListResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
}

func (ConversationListResponse) method() string { return MethodConversationList }

// PingResponse answers a keepalive probe.
type PingResponse struct {
	Body string `json:"body"`
}

func (PingResponse) method() string { return MethodPing }

// CompletionResponse is one incremental fragment of assistant output.
type CompletionResponse struct {
	Stream         bool   `json:"stream"`
	Delta          string `json:"delta"`
	Name           string `json:"name"`
	ConversationID int64  `json:"conversationId"`
	RequestID      int64  `json:"requestId"`
	ResponseID     int64  `json:"responseId"`
}

func (CompletionResponse) method() string { return MethodCompletion }

// SystemPromptResponse echoes the current (or just-written) system prompt.
type SystemPromptResponse struct {
	Content string `json:"content"`
	Write   bool   `json:"write"`
}

func (SystemPromptResponse) method() string { return MethodSystemPrompt }

// Wire mirrors with pointer fields distinguish "absent" from zero values so
// missing required fields are rejected rather than silently defaulted.

type wireMessage struct {
	ID           *int64    `json:"id"`
	Role         *string   `json:"message_type"`
	Content      *string   `json:"content"`
	API          *chat.API `json:"api"`
	SystemPrompt *string   `json:"system_prompt"`
	Sequence     *int      `json:"sequence"`
}

type wireConversation struct {
	ID       *int64        `json:"id"`
	Name     *string       `json:"name"`
	Messages []wireMessage `json:"messages"`
}

type wireCompletion struct {
	Stream         *bool   `json:"stream"`
	Delta          *string `json:"delta"`
	Name           *string `json:"name"`
	ConversationID *int64  `json:"conversationId"`
	RequestID      *int64  `json:"requestId"`
	ResponseID     *int64  `json:"responseId"`
}

type wirePing struct {
	Body *string `json:"body"`
}

type wireSystemPrompt struct {
	Content *string `json:"content"`
	Write   *bool   `json:"write"`
}

type wireConversationList struct {
	Conversations *[]wireConversation `json:"conversations"`
}

func (w *wireMessage) toChat(index int) (chat.Message, error) {
	if w.Role == nil || w.Content == nil || w.Sequence == nil {
		return chat.Message{}, validationErr("message %d: missing required field", index)
	}
	m := chat.Message{
		ID:       w.ID,
		Role:     chat.Role(*w.Role),
		Content:  *w.Content,
		Sequence: *w.Sequence,
	}
	if w.API != nil {
		m.API = *w.API
	}
	if w.SystemPrompt != nil {
		m.SystemPrompt = *w.SystemPrompt
	}
	return m, nil
}

func (w *wireConversation) toChat() (chat.Conversation, error) {
	if w.Name == nil {
		return chat.Conversation{}, validationErr("conversation missing name")
	}
	c := chat.Conversation{ID: w.ID, Name: *w.Name}
	c.Messages = make([]chat.Message, 0, len(w.Messages))
	for i := range w.Messages {
		m, err := w.Messages[i].toChat(i)
		if err != nil {
			return chat.Conversation{}, err
		}
		c.Messages = append(c.Messages, m)
	}
	if err := c.Validate(); err != nil {
		return chat.Conversation{}, validationErr("conversation %q: %v", *w.Name, err)
	}
	return c, nil
}

// DecodeResponse parses raw bytes into one of the closed response shapes.
// Frames with an unrecognized method or a missing required field fail with
// domain.ErrValidation; callers drop and log them, never apply them.
func DecodeResponse(data []byte) (Response, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, validationErr("parse envelope: %v", err)
	}

	switch env.Method {
	case MethodPing:
		var w wirePing
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Body == nil {
			return nil, validationErr("%s response missing body", env.Method)
		}
		return PingResponse{Body: *w.Body}, nil

	case MethodCompletion:
		var w wireCompletion
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Delta == nil || w.ConversationID == nil || w.RequestID == nil || w.ResponseID == nil {
			return nil, validationErr("%s response missing required field", env.Method)
		}
		resp := CompletionResponse{
			Delta:          *w.Delta,
			ConversationID: *w.ConversationID,
			RequestID:      *w.RequestID,
			ResponseID:     *w.ResponseID,
		}
		if w.Stream != nil {
			resp.Stream = *w.Stream
		}
		if w.Name != nil {
			resp.Name = *w.Name
		}
		return resp, nil

	case MethodConversationList:
		var w wireConversationList
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Conversations == nil {
			return nil, validationErr("%s response missing conversations", env.Method)
		}
		resp := ConversationListResponse{Conversations: make([]chat.Conversation, 0, len(*w.Conversations))}
		for i := range *w.Conversations {
			c, err := (*w.Conversations)[i].toChat()
			if err != nil {
				return nil, err
			}
			resp.Conversations = append(resp.Conversations, c)
		}
		return resp, nil

	case MethodSystemPrompt:
		var w wireSystemPrompt
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return nil, validationErr("parse %s payload: %v", env.Method, err)
		}
		if w.Content == nil {
			return nil, validationErr("%s response missing content", env.Method)
		}
		resp := SystemPromptResponse{Content: *w.Content}
		if w.Write != nil {
			resp.Write = *w.Write
		}
		return resp, nil

	default:
		return nil, validationErr("unknown response method %q", env.Method)
	}
}

// EncodeResponse serializes a response to its wire form. Used by the
// reference server; the shapes are shared so both sides stay in lockstep.
func EncodeResponse(resp Response) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", resp.method(), err)
	}
	data, err := json.Marshal(Envelope{Method: resp.method(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", resp.method(), err)
	}
	return data, nil
}
