package client

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/wirechat/wirechat/internal/domain/chat"
	"github.com/wirechat/wirechat/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64p(v int64) *int64 { return &v }

var testAPI = chat.API{Provider: "openai", Model: "gpt-4o"}

func TestStartNewReplacesWholesale(t *testing.T) {
	r := newReconciler(testLogger())
	if !r.submitTurn("hello", testAPI, "") {
		t.Fatal("submit failed")
	}
	oldName := r.conv.Name

	r.startNew()

	if len(r.conv.Messages) != 0 {
		t.Fatalf("expected empty conversation, got %d messages", len(r.conv.Messages))
	}
	if r.conv.Name == oldName || r.conv.Name == "" {
		t.Fatalf("expected a fresh opaque name, got %q", r.conv.Name)
	}
	if r.conv.ID != nil {
		t.Fatal("expected nil id on fresh conversation")
	}
}

func TestSubmitTurnAppendsOptimisticPair(t *testing.T) {
	r := newReconciler(testLogger())

	if !r.submitTurn("Hello", testAPI, "be brief") {
		t.Fatal("expected submit to succeed")
	}

	msgs := r.conv.Messages
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	user, asst := msgs[0], msgs[1]
	if user.Role != chat.RoleUser || user.Content != "Hello" || user.Sequence != 0 || user.ID != nil {
		t.Fatalf("unexpected user message: %+v", user)
	}
	if asst.Role != chat.RoleAssistant || asst.Content != "" || asst.Sequence != 1 || asst.ID != nil {
		t.Fatalf("unexpected assistant placeholder: %+v", asst)
	}
	if user.SystemPrompt != "be brief" || asst.SystemPrompt != "be brief" {
		t.Fatal("expected system prompt on both messages")
	}
	if err := r.conv.Validate(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func TestSubmitTurnEmptyIsNoOp(t *testing.T) {
	r := newReconciler(testLogger())
	if r.submitTurn("", testAPI, "") {
		t.Fatal("expected empty submit to be rejected")
	}
	if len(r.conv.Messages) != 0 {
		t.Fatalf("expected unchanged conversation, got %d messages", len(r.conv.Messages))
	}
}

func TestSubmitTurnRejectedWhilePending(t *testing.T) {
	r := newReconciler(testLogger())
	if !r.submitTurn("first", testAPI, "") {
		t.Fatal("first submit failed")
	}
	if r.submitTurn("second", testAPI, "") {
		t.Fatal("expected second submit to be rejected while placeholder pending")
	}
	if len(r.conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(r.conv.Messages))
	}
}

func TestSubmitTurnSequencesContinue(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("one", testAPI, "")
	r.applyDelta(protocol.CompletionResponse{Delta: "reply", ConversationID: 1, RequestID: 1, ResponseID: 2})

	if !r.submitTurn("two", testAPI, "") {
		t.Fatal("second turn failed")
	}
	msgs := r.conv.Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[2].Sequence != 2 || msgs[3].Sequence != 3 {
		t.Fatalf("expected sequences 2 and 3, got %d and %d", msgs[2].Sequence, msgs[3].Sequence)
	}
}

func TestApplyDeltaConcatenatesInOrder(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("Hello", testAPI, "")

	deltas := []string{"Th", "e qu", "ick", " brown", " fox"}
	want := ""
	for _, d := range deltas {
		want += d
		r.applyDelta(protocol.CompletionResponse{
			Stream: true, Delta: d, Name: "x",
			ConversationID: 5, RequestID: 10, ResponseID: 11,
		})
	}

	got := r.conv.Trailing().Content
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestApplyDeltaFinalizesIdentifiers(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("Hello", testAPI, "")

	r.applyDelta(protocol.CompletionResponse{
		Delta: "Hi", Name: "x", ConversationID: 5, RequestID: 10, ResponseID: 11,
	})

	msgs := r.conv.Messages
	if msgs[1].Content != "Hi" {
		t.Fatalf("expected trailing content Hi, got %q", msgs[1].Content)
	}
	if msgs[1].ID == nil || *msgs[1].ID != 11 {
		t.Fatalf("expected trailing id 11, got %v", msgs[1].ID)
	}
	if msgs[0].ID == nil || *msgs[0].ID != 10 {
		t.Fatalf("expected user id 10, got %v", msgs[0].ID)
	}
	if r.conv.ID == nil || *r.conv.ID != 5 {
		t.Fatalf("expected conversation id 5, got %v", r.conv.ID)
	}
	if r.conv.Name != "x" {
		t.Fatalf("expected adopted name x, got %q", r.conv.Name)
	}

	// Later deltas of the same stream must not change ids.
	r.applyDelta(protocol.CompletionResponse{
		Delta: "!", Name: "x", ConversationID: 5, RequestID: 99, ResponseID: 11,
	})
	if *msgs[1].ID != 11 || *msgs[0].ID != 10 {
		t.Fatal("expected identifier assignment to be idempotent")
	}
	if msgs[1].Content != "Hi!" {
		t.Fatalf("expected continued stream to append, got %q", msgs[1].Content)
	}
}

func TestApplyDeltaEmptyConversationDropped(t *testing.T) {
	r := newReconciler(testLogger())
	r.applyDelta(protocol.CompletionResponse{
		Delta: "orphan", ConversationID: 5, RequestID: 10, ResponseID: 11,
	})
	if len(r.conv.Messages) != 0 {
		t.Fatal("expected delta against empty conversation to be dropped")
	}
	if r.conv.ID != nil {
		t.Fatal("expected identity unchanged")
	}
}

func TestApplyDeltaAfterLoadDropped(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("a question", testAPI, "")

	// The user loads another conversation before the stream settles.
	r.applyLoad(chat.Conversation{
		ID:   int64p(7),
		Name: "conv B",
		Messages: []chat.Message{
			{ID: int64p(3), Role: chat.RoleUser, Content: "b question", Sequence: 0},
			{ID: int64p(4), Role: chat.RoleAssistant, Content: "b answer", Sequence: 1},
		},
	})

	r.applyDelta(protocol.CompletionResponse{
		Stream: true, Delta: " STALE", Name: "conv A",
		ConversationID: 5, RequestID: 10, ResponseID: 11,
	})

	if got := r.conv.Trailing().Content; got != "b answer" {
		t.Fatalf("stale delta reached loaded message: %q", got)
	}
	if *r.conv.ID != 7 || r.conv.Name != "conv B" {
		t.Fatalf("stale delta changed identity: id %v, name %q", r.conv.ID, r.conv.Name)
	}
}

func TestApplyDeltaFinishedTrailingDropped(t *testing.T) {
	r := newReconciler(testLogger())
	r.applyLoad(chat.Conversation{
		ID:   int64p(5),
		Name: "same conversation",
		Messages: []chat.Message{
			{ID: int64p(3), Role: chat.RoleUser, Content: "q", Sequence: 0},
			{ID: int64p(4), Role: chat.RoleAssistant, Content: "a", Sequence: 1},
		},
	})

	// Same conversation, but the fragment belongs to a stream whose target
	// no longer exists.
	r.applyDelta(protocol.CompletionResponse{
		Stream: true, Delta: " STALE",
		ConversationID: 5, RequestID: 10, ResponseID: 11,
	})

	if got := r.conv.Trailing().Content; got != "a" {
		t.Fatalf("stale delta reached finished message: %q", got)
	}
}

func TestApplyLoadReplacesWholesale(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("local turn", testAPI, "")

	loaded := chat.Conversation{
		ID:   int64p(7),
		Name: "history",
		Messages: []chat.Message{
			{ID: int64p(1), Role: chat.RoleUser, Content: "old", Sequence: 0},
			{ID: int64p(2), Role: chat.RoleAssistant, Content: "older", Sequence: 1},
		},
	}
	r.applyLoad(loaded)

	if len(r.conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(r.conv.Messages))
	}
	for _, m := range r.conv.Messages {
		if m.Content == "local turn" {
			t.Fatal("message from prior conversation survived load")
		}
	}
	if r.conv.Name != "history" || r.conv.ID == nil || *r.conv.ID != 7 {
		t.Fatalf("unexpected identity after load: %+v", r.conv)
	}

	// The load must not alias the caller's slice.
	loaded.Messages[0].Content = "mutated"
	if r.conv.Messages[0].Content != "old" {
		t.Fatal("load aliased caller's message slice")
	}
}

func TestForkTruncatesAndResetsPlaceholder(t *testing.T) {
	r := newReconciler(testLogger())
	conv := chat.Conversation{ID: int64p(4), Name: "n"}
	for i := 0; i < 6; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		id := int64(i + 1)
		conv.Messages = append(conv.Messages, chat.Message{
			ID: &id, Role: role, Content: fmt.Sprintf("m%d", i), Sequence: i,
		})
	}
	r.applyLoad(conv)

	const k = 2
	if !r.fork(k, testAPI, "sp") {
		t.Fatal("fork failed")
	}

	msgs := r.conv.Messages
	if len(msgs) != k+2 {
		t.Fatalf("expected %d messages after fork, got %d", k+2, len(msgs))
	}
	for i := 0; i <= k; i++ {
		if msgs[i].Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d not preserved: %+v", i, msgs[i])
		}
	}
	tail := msgs[k+1]
	if tail.Role != chat.RoleAssistant || tail.Content != "" || tail.ID != nil {
		t.Fatalf("unexpected regenerate target: %+v", tail)
	}
	if tail.SystemPrompt != "sp" || tail.API != testAPI {
		t.Fatalf("expected current prompt/model on target, got %+v", tail)
	}
	if tail.Sequence != k+1 {
		t.Fatalf("expected target sequence %d, got %d", k+1, tail.Sequence)
	}
}

func TestForkOutOfRange(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("hi", testAPI, "")
	if r.fork(5, testAPI, "") {
		t.Fatal("expected out-of-range fork to fail")
	}
	if r.fork(-1, testAPI, "") {
		t.Fatal("expected negative fork to fail")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := newReconciler(testLogger())
	r.submitTurn("hi", testAPI, "")

	snap := r.snapshot()
	snap.Messages[0].Content = "mutated"

	if r.conv.Messages[0].Content != "hi" {
		t.Fatal("snapshot aliased reconciler state")
	}
}
