package client

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/wirechat/wirechat/internal/domain/chat"
	"github.com/wirechat/wirechat/internal/protocol"
)

// reconciler owns the current conversation and merges protocol events into
// it. It trusts its inputs: every inbound value has already passed codec
// validation. Not safe for concurrent use; the Client serializes access.
type reconciler struct {
	conv chat.Conversation
	log  *slog.Logger
}

func newReconciler(log *slog.Logger) *reconciler {
	return &reconciler{
		conv: chat.Conversation{Name: uuid.NewString()},
		log:  log,
	}
}

// startNew replaces the conversation wholesale with a fresh empty one under
// a new opaque name. Always a full replace, never a merge.
func (r *reconciler) startNew() {
	r.conv = chat.Conversation{Name: uuid.NewString()}
}

// applyLoad replaces the conversation wholesale with a server-provided one.
// The replacement is atomic: observers only ever see the old or the new log.
func (r *reconciler) applyLoad(conv chat.Conversation) {
	r.conv = conv.Clone()
}

// submitTurn appends the optimistic pair for a user turn: the User message
// and an empty Assistant placeholder, both without server ids. Returns false
// without touching state when text is empty, or when a placeholder is still
// pending from a previous turn (the trailing-message invariant allows only
// one).
func (r *reconciler) submitTurn(text string, api chat.API, systemPrompt string) bool {
	if text == "" {
		return false
	}
	if t := r.conv.Trailing(); t != nil && t.Pending() {
		return false
	}

	seq := r.conv.NextSequence()
	r.conv.Messages = append(r.conv.Messages,
		chat.Message{
			Role:         chat.RoleUser,
			Content:      text,
			API:          api,
			SystemPrompt: systemPrompt,
			Sequence:     seq,
		},
		chat.Message{
			Role:         chat.RoleAssistant,
			API:          api,
			SystemPrompt: systemPrompt,
			Sequence:     seq + 1,
		},
	)
	return true
}

// applyDelta merges one completion fragment: append the delta to the
// trailing assistant message, finalize the optimistic pair's identifiers
// (idempotent after the first fragment), and adopt the server-assigned
// conversation identity. One atomic transition per fragment, in receipt
// order. A fragment from a stream the conversation no longer belongs to
// (the user loaded or forked mid-stream) is dropped whole.
func (r *reconciler) applyDelta(c protocol.CompletionResponse) {
	n := len(r.conv.Messages)
	if n == 0 {
		r.log.Warn("completion delta with no messages, dropped",
			"conversation_id", c.ConversationID)
		return
	}
	if r.conv.ID != nil && *r.conv.ID != c.ConversationID {
		r.log.Warn("completion delta for a superseded conversation, dropped",
			"conversation_id", c.ConversationID)
		return
	}

	last := &r.conv.Messages[n-1]
	if last.Role != chat.RoleAssistant || (last.ID != nil && *last.ID != c.ResponseID) {
		r.log.Warn("completion delta without a matching target, dropped",
			"conversation_id", c.ConversationID, "response_id", c.ResponseID)
		return
	}
	last.Content += c.Delta
	if last.ID == nil {
		id := c.ResponseID
		last.ID = &id
	}
	if n > 1 {
		prev := &r.conv.Messages[n-2]
		if prev.ID == nil {
			id := c.RequestID
			prev.ID = &id
		}
	}

	id := c.ConversationID
	r.conv.ID = &id
	if c.Name != "" {
		r.conv.Name = c.Name
	}
}

// fork keeps messages 0..sequence and installs a fresh regenerate target
// after the cut: an empty Assistant placeholder carrying the currently
// selected api and system prompt.
func (r *reconciler) fork(sequence int, api chat.API, systemPrompt string) bool {
	if sequence < 0 || sequence >= len(r.conv.Messages) {
		return false
	}

	kept := make([]chat.Message, sequence+1, sequence+2)
	copy(kept, r.conv.Messages[:sequence+1])
	r.conv.Messages = append(kept, chat.Message{
		Role:         chat.RoleAssistant,
		API:          api,
		SystemPrompt: systemPrompt,
		Sequence:     sequence + 1,
	})
	return true
}

// snapshot returns a deep copy of the current conversation.
func (r *reconciler) snapshot() chat.Conversation {
	return r.conv.Clone()
}
