// Package memstore implements the database store port in process memory.
// It backs the reference server when no Postgres DSN is configured, and the
// tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wirechat/wirechat/internal/domain"
	"github.com/wirechat/wirechat/internal/domain/chat"
)

type record struct {
	conv      chat.Conversation
	updatedAt time.Time
}

// Store is an in-memory conversation store. Safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	convs        map[int64]*record
	nextConvID   int64
	nextMsgID    int64
	systemPrompt string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		convs:      make(map[int64]*record),
		nextConvID: 1,
		nextMsgID:  1,
	}
}

func (s *Store) ListConversations(_ context.Context) ([]chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]*record, 0, len(s.convs))
	for _, r := range s.convs {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].updatedAt.After(recs[j].updatedAt) })

	result := make([]chat.Conversation, len(recs))
	for i, r := range recs {
		result[i] = r.conv.Clone()
	}
	return result, nil
}

func (s *Store) GetConversation(_ context.Context, id int64) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("get conversation %d: %w", id, domain.ErrNotFound)
	}
	conv := r.conv.Clone()
	return &conv, nil
}

func (s *Store) SaveConversation(_ context.Context, conv chat.Conversation) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := conv.Clone()
	if stored.ID == nil {
		id := s.nextConvID
		s.nextConvID++
		stored.ID = &id
	}
	for i := range stored.Messages {
		if stored.Messages[i].ID == nil {
			id := s.nextMsgID
			s.nextMsgID++
			stored.Messages[i].ID = &id
		}
	}

	s.convs[*stored.ID] = &record{conv: stored, updatedAt: time.Now()}
	out := stored.Clone()
	return &out, nil
}

func (s *Store) UpdateMessageContent(_ context.Context, messageID int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.convs {
		for i := range r.conv.Messages {
			m := &r.conv.Messages[i]
			if m.ID != nil && *m.ID == messageID {
				m.Content = content
				r.updatedAt = time.Now()
				return nil
			}
		}
	}
	return fmt.Errorf("update message %d: %w", messageID, domain.ErrNotFound)
}

func (s *Store) ForkConversation(_ context.Context, id int64, sequence int) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("fork conversation %d: %w", id, domain.ErrNotFound)
	}
	if sequence < 0 || sequence >= len(r.conv.Messages) {
		return nil, fmt.Errorf("fork conversation %d at sequence %d: %w", id, sequence, domain.ErrNotFound)
	}

	cut := r.conv.Messages[sequence]
	msgID := s.nextMsgID
	s.nextMsgID++

	kept := make([]chat.Message, sequence+1, sequence+2)
	copy(kept, r.conv.Messages[:sequence+1])
	r.conv.Messages = append(kept, chat.Message{
		ID:           &msgID,
		Role:         chat.RoleAssistant,
		API:          cut.API,
		SystemPrompt: cut.SystemPrompt,
		Sequence:     sequence + 1,
	})
	r.updatedAt = time.Now()

	conv := r.conv.Clone()
	return &conv, nil
}

func (s *Store) GetSystemPrompt(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPrompt, nil
}

func (s *Store) SetSystemPrompt(_ context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPrompt = content
	return nil
}
