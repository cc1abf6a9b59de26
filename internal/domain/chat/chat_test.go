package chat

import "testing"

func int64p(v int64) *int64 { return &v }

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Fatalf("expected %q to be valid", r)
		}
	}
	if Role("Tool").Valid() {
		t.Fatal("expected unknown role to be invalid")
	}
}

func TestTrailingEmpty(t *testing.T) {
	var c Conversation
	if c.Trailing() != nil {
		t.Fatal("expected nil trailing message on empty conversation")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := Conversation{
		ID:   int64p(5),
		Name: "orig",
		Messages: []Message{
			{ID: int64p(10), Role: RoleUser, Content: "hi", Sequence: 0},
			{Role: RoleAssistant, Sequence: 1},
		},
	}

	cp := c.Clone()
	cp.Messages[0].Content = "mutated"
	*cp.Messages[0].ID = 99
	*cp.ID = 42

	if c.Messages[0].Content != "hi" {
		t.Fatalf("clone aliased message content: %q", c.Messages[0].Content)
	}
	if *c.Messages[0].ID != 10 {
		t.Fatalf("clone aliased message id: %d", *c.Messages[0].ID)
	}
	if *c.ID != 5 {
		t.Fatalf("clone aliased conversation id: %d", *c.ID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		conv    Conversation
		wantErr bool
	}{
		{
			name: "empty",
			conv: Conversation{},
		},
		{
			name: "user plus pending assistant",
			conv: Conversation{Messages: []Message{
				{ID: int64p(1), Role: RoleUser, Content: "hi", Sequence: 0},
				{Role: RoleAssistant, Sequence: 1},
			}},
		},
		{
			name: "gap in sequence",
			conv: Conversation{Messages: []Message{
				{ID: int64p(1), Role: RoleUser, Content: "hi", Sequence: 1},
			}},
			wantErr: true,
		},
		{
			name: "unknown role",
			conv: Conversation{Messages: []Message{
				{ID: int64p(1), Role: "Tool", Content: "x", Sequence: 0},
			}},
			wantErr: true,
		},
		{
			name: "pending not last",
			conv: Conversation{Messages: []Message{
				{Role: RoleAssistant, Sequence: 0},
				{ID: int64p(2), Role: RoleUser, Content: "hi", Sequence: 1},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conv.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
