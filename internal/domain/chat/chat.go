// Package chat defines the conversation model shared by the client core and
// the reference server.
package chat

import "fmt"

// Role identifies who authored a message. Fixed at creation.
type Role string

// Message roles. The wire protocol uses these exact strings.
const (
	RoleSystem    Role = "System"
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// API selects the provider and model that produces an assistant message.
type API struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Message is one turn in a conversation. ID is nil until the server assigns
// a permanent identifier (optimistic-create state).
type Message struct {
	ID           *int64 `json:"id"`
	Role         Role   `json:"message_type"`
	Content      string `json:"content"`
	API          API    `json:"api"`
	SystemPrompt string `json:"system_prompt"`
	Sequence     int    `json:"sequence"`
}

// Pending reports whether the message is a local placeholder awaiting its
// server-assigned identifier.
func (m *Message) Pending() bool {
	return m.ID == nil && m.Content == ""
}

// Conversation is an ordered log of messages plus identity. ID is nil until
// the first server round-trip assigns one.
type Conversation struct {
	ID       *int64    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// NextSequence returns the sequence number the next appended message takes.
func (c *Conversation) NextSequence() int {
	return len(c.Messages)
}

// Trailing returns the last message, or nil if the conversation is empty.
func (c *Conversation) Trailing() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Clone returns a deep copy. Snapshots handed outside the reconciler must
// never alias its message slice.
func (c *Conversation) Clone() Conversation {
	out := Conversation{Name: c.Name}
	if c.ID != nil {
		id := *c.ID
		out.ID = &id
	}
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m
		if m.ID != nil {
			id := *m.ID
			out.Messages[i].ID = &id
		}
	}
	return out
}

// Validate checks the structural invariants of a conversation: contiguous
// 0-based sequences, known roles, and at most one pending message which must
// be the last element.
func (c *Conversation) Validate() error {
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.Sequence != i {
			return fmt.Errorf("message %d: sequence %d out of order", i, m.Sequence)
		}
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if m.Pending() && i != len(c.Messages)-1 {
			return fmt.Errorf("message %d: pending message is not last", i)
		}
	}
	return nil
}
