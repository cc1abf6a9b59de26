package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/domain"
	"github.com/wirechat/wirechat/internal/domain/chat"
)

// testStore connects to PostgreSQL or skips the test if DATABASE_URL is not
// set. Migrations are applied and the tables truncated.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	truncate(t, pool)
	return NewStore(pool)
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, `TRUNCATE conversations, messages RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE system_prompt SET content = '' WHERE id = 1`); err != nil {
		t.Fatalf("reset system prompt: %v", err)
	}
}

func sampleConversation() chat.Conversation {
	api := chat.API{Provider: "openai", Model: "gpt-4o"}
	return chat.Conversation{
		Name: "sample",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "q1", API: api, Sequence: 0},
			{Role: chat.RoleAssistant, Content: "a1", API: api, Sequence: 1},
			{Role: chat.RoleUser, Content: "q2", API: api, Sequence: 2},
			{Role: chat.RoleAssistant, Content: "a2", API: api, Sequence: 3},
		},
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.SaveConversation(ctx, sampleConversation())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == nil {
		t.Fatal("expected conversation id")
	}
	for i, m := range saved.Messages {
		if m.ID == nil {
			t.Fatalf("message %d has no id", i)
		}
	}

	got, err := s.GetConversation(ctx, *saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "sample" || len(got.Messages) != 4 {
		t.Fatalf("unexpected conversation: %+v", got)
	}
	if got.Messages[2].Content != "q2" || got.Messages[2].API.Model != "gpt-4o" {
		t.Fatalf("unexpected message: %+v", got.Messages[2])
	}
}

func TestStoreSaveUpsertsAndTrims(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.SaveConversation(ctx, sampleConversation())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// Shorten the log; the trailing rows must be removed.
	saved.Messages = saved.Messages[:2]
	saved.Messages[1].Content = "revised"
	again, err := s.SaveConversation(ctx, *saved)
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if *again.ID != *saved.ID {
		t.Fatalf("upsert changed id: %d -> %d", *saved.ID, *again.ID)
	}

	got, err := s.GetConversation(ctx, *saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "revised" {
		t.Fatalf("unexpected log after trim: %+v", got.Messages)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.GetConversation(context.Background(), 424242)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.SaveConversation(ctx, chat.Conversation{Name: "first"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SaveConversation(ctx, chat.Conversation{Name: "second"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	first.Messages = []chat.Message{{Role: chat.RoleUser, Content: "q", Sequence: 0}}
	if _, err := s.SaveConversation(ctx, *first); err != nil {
		t.Fatalf("resave: %v", err)
	}

	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "first" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if len(list[0].Messages) != 1 {
		t.Fatalf("list should carry message logs: %+v", list[0])
	}
}

func TestStoreFork(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.SaveConversation(ctx, sampleConversation())
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	forked, err := s.ForkConversation(ctx, *saved.ID, 2)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if len(forked.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(forked.Messages))
	}
	tail := forked.Messages[3]
	if tail.Role != chat.RoleAssistant || tail.Content != "" || tail.Sequence != 3 {
		t.Fatalf("unexpected placeholder: %+v", tail)
	}
	if tail.API.Model != "gpt-4o" {
		t.Fatalf("placeholder should inherit the cut message's api: %+v", tail)
	}

	_, err = s.ForkConversation(ctx, *saved.ID, 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdateMessageContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.SaveConversation(ctx, sampleConversation())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	msgID := *saved.Messages[3].ID

	if err := s.UpdateMessageContent(ctx, msgID, "final answer"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetConversation(ctx, *saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Messages[3].Content != "final answer" {
		t.Fatalf("content not updated: %q", got.Messages[3].Content)
	}

	if err := s.UpdateMessageContent(ctx, 999999, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSystemPrompt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.GetSystemPrompt(ctx)
	if err != nil || got != "" {
		t.Fatalf("expected empty prompt, got %q, %v", got, err)
	}
	if err := s.SetSystemPrompt(ctx, "be nice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err = s.GetSystemPrompt(ctx)
	if err != nil || got != "be nice" {
		t.Fatalf("expected be nice, got %q, %v", got, err)
	}
}
