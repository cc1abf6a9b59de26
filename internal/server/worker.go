package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wirechat/wirechat/internal/port/database"
	"github.com/wirechat/wirechat/internal/port/messagequeue"
)

// Generator produces the assistant reply for one completion job, emitting
// it as incremental fragments. emit is called in stream order; returning an
// error aborts the generation.
type Generator func(ctx context.Context, job messagequeue.CompletionJobPayload, emit func(delta string) error) error

// CannedGenerator streams a deterministic reply one word at a time. It
// stands in for a real model behind the same interface.
func CannedGenerator(ctx context.Context, job messagequeue.CompletionJobPayload, emit func(string) error) error {
	reply := fmt.Sprintf("You said: %s. This is a canned reply from %s.", job.Prompt, job.Model)
	words := strings.Fields(reply)
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := w
		if i < len(words)-1 {
			chunk += " "
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Worker consumes completion jobs from the queue, streams fragments back on
// the job's session subject and persists the finished reply.
type Worker struct {
	store database.Store
	queue messagequeue.Queue
	gen   Generator
	log   *slog.Logger
}

// NewWorker creates a completion worker. Start must be called to begin
// consuming.
func NewWorker(store database.Store, queue messagequeue.Queue, gen Generator, log *slog.Logger) *Worker {
	return &Worker{store: store, queue: queue, gen: gen, log: log}
}

// Start subscribes the worker to the job subject. The returned function
// cancels the subscription.
func (w *Worker) Start(ctx context.Context) (func(), error) {
	cancel, err := w.queue.Subscribe(ctx, messagequeue.SubjectCompletionJob, w.handle)
	if err != nil {
		return nil, fmt.Errorf("worker subscribe: %w", err)
	}
	w.log.Info("completion worker started")
	return cancel, nil
}

func (w *Worker) handle(ctx context.Context, _ string, data []byte) error {
	var job messagequeue.CompletionJobPayload
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode completion job: %w", err)
	}

	deliver := func(p messagequeue.CompletionDeltaPayload) error {
		out, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode delta: %w", err)
		}
		return w.queue.Publish(ctx, messagequeue.DeltaSubject(job.SessionID), out)
	}
	return runJob(ctx, w.store, w.gen, job, deliver, w.log)
}

// runJob executes one completion job: generate fragments, deliver each in
// order, then persist the assembled reply on the placeholder message. The
// delivery path is pluggable so the inline fallback can bypass the queue.
func runJob(ctx context.Context, store database.Store, gen Generator,
	job messagequeue.CompletionJobPayload,
	deliver func(messagequeue.CompletionDeltaPayload) error,
	log *slog.Logger,
) error {
	var full strings.Builder

	err := gen(ctx, job, func(delta string) error {
		full.WriteString(delta)
		return deliver(messagequeue.CompletionDeltaPayload{
			ConversationID: job.ConversationID,
			Name:           job.Name,
			RequestID:      job.RequestID,
			ResponseID:     job.ResponseID,
			Delta:          delta,
		})
	})
	if err != nil {
		return fmt.Errorf("generate completion for conversation %d: %w", job.ConversationID, err)
	}

	if err := deliver(messagequeue.CompletionDeltaPayload{
		ConversationID: job.ConversationID,
		Name:           job.Name,
		RequestID:      job.RequestID,
		ResponseID:     job.ResponseID,
		Done:           true,
	}); err != nil {
		log.Warn("final delta delivery failed", "conversation_id", job.ConversationID, "error", err)
	}

	if err := store.UpdateMessageContent(ctx, job.ResponseID, full.String()); err != nil {
		return fmt.Errorf("persist completion for message %d: %w", job.ResponseID, err)
	}
	return nil
}
