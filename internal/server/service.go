// Package server implements the reference WireChat server: a chi router
// with one WebSocket endpoint speaking the chat protocol, backed by the
// store, cache and queue ports.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	wcotel "github.com/wirechat/wirechat/internal/adapter/otel"
	"github.com/wirechat/wirechat/internal/domain"
	"github.com/wirechat/wirechat/internal/domain/chat"
	"github.com/wirechat/wirechat/internal/port/cache"
	"github.com/wirechat/wirechat/internal/port/database"
	"github.com/wirechat/wirechat/internal/port/messagequeue"
	"github.com/wirechat/wirechat/internal/protocol"
	"github.com/wirechat/wirechat/internal/resilience"
)

// Service owns the server-side chat operations shared by all sessions.
type Service struct {
	store   database.Store
	cache   cache.Cache
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	gen     Generator
	listTTL time.Duration
	log     *slog.Logger
}

// NewService wires the chat service over its ports.
func NewService(store database.Store, c cache.Cache, queue messagequeue.Queue,
	breaker *resilience.Breaker, gen Generator, listTTL time.Duration, log *slog.Logger,
) *Service {
	return &Service{
		store:   store,
		cache:   c,
		queue:   queue,
		breaker: breaker,
		gen:     gen,
		listTTL: listTTL,
		log:     log,
	}
}

// DirectoryFrame returns the encoded ConversationList response. The encoded
// frame is cached whole; any mutation of stored conversations invalidates
// it.
func (s *Service) DirectoryFrame(ctx context.Context) ([]byte, error) {
	if data, ok, err := s.cache.Get(ctx, cache.KeyConversationList); err == nil && ok {
		return data, nil
	}

	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	data, err := protocol.EncodeResponse(protocol.ConversationListResponse{Conversations: convs})
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	if err := s.cache.Set(ctx, cache.KeyConversationList, data, s.listTTL); err != nil {
		s.log.Warn("directory cache set failed", "error", err)
	}
	return data, nil
}

func (s *Service) invalidateDirectory(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.KeyConversationList); err != nil {
		s.log.Warn("directory cache invalidation failed", "error", err)
	}
}

// Submit persists the submitted conversation and starts the completion for
// its trailing placeholder. Fragments normally travel through the queue to
// the session's delta subject; when the queue is unavailable (circuit open
// or publish failure) the job runs inline and fragments are handed to emit
// directly.
func (s *Service) Submit(ctx context.Context, sessionID string, conv chat.Conversation,
	emit func(messagequeue.CompletionDeltaPayload) error,
) error {
	// Pendingness is a property of the submitted log; saving assigns ids
	// and would mask it.
	n := len(conv.Messages)
	if n < 2 || !conv.Messages[n-1].Pending() {
		return fmt.Errorf("submit: conversation %q has no pending placeholder: %w",
			conv.Name, domain.ErrValidation)
	}

	saved, err := s.store.SaveConversation(ctx, conv)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	s.invalidateDirectory(ctx)

	request := saved.Messages[n-2]
	response := saved.Messages[n-1]

	job := messagequeue.CompletionJobPayload{
		SessionID:      sessionID,
		ConversationID: *saved.ID,
		Name:           saved.Name,
		RequestID:      *request.ID,
		ResponseID:     *response.ID,
		Provider:       response.API.Provider,
		Model:          response.API.Model,
		SystemPrompt:   response.SystemPrompt,
		Prompt:         request.Content,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("submit: encode job: %w", err)
	}

	spanCtx, span := wcotel.StartCompletionSpan(ctx, job.ConversationID, job.Model)
	err = s.breaker.Execute(func() error {
		return s.queue.Publish(spanCtx, messagequeue.SubjectCompletionJob, data)
	})
	if err == nil {
		span.End()
		return nil
	}

	s.log.Warn("queue unavailable, running completion inline",
		"conversation_id", job.ConversationID, "error", err)
	go func() {
		defer span.End()
		if err := runJob(context.WithoutCancel(spanCtx), s.store, s.gen, job, emit, s.log); err != nil {
			s.log.Error("inline completion failed", "conversation_id", job.ConversationID, "error", err)
		}
	}()
	return nil
}

// Fork branches a stored conversation at the cut sequence.
func (s *Service) Fork(ctx context.Context, conversationID int64, sequence int) error {
	ctx, span := wcotel.StartForkSpan(ctx, conversationID, sequence)
	defer span.End()

	if _, err := s.store.ForkConversation(ctx, conversationID, sequence); err != nil {
		return fmt.Errorf("fork: %w", err)
	}
	s.invalidateDirectory(ctx)
	return nil
}

// GetConversation returns one stored conversation.
func (s *Service) GetConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// SystemPrompt reads or writes the stored system prompt, returning the
// content after the operation.
func (s *Service) SystemPrompt(ctx context.Context, content string, write bool) (string, error) {
	if write {
		if err := s.store.SetSystemPrompt(ctx, content); err != nil {
			return "", fmt.Errorf("system prompt: %w", err)
		}
		return content, nil
	}
	stored, err := s.store.GetSystemPrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("system prompt: %w", err)
	}
	return stored, nil
}

// QueueConnected reports whether the queue backend is reachable.
func (s *Service) QueueConnected() bool { return s.queue.IsConnected() }

// BreakerState reports the publish circuit state.
func (s *Service) BreakerState() resilience.State { return s.breaker.State() }
