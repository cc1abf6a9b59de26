package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wirechat/wirechat/internal/domain"
	"github.com/wirechat/wirechat/internal/domain/chat"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var result []chat.Conversation
	index := make(map[int64]int)
	for rows.Next() {
		var c chat.Conversation
		var id int64
		if err := rows.Scan(&id, &c.Name); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.ID = &id
		index[id] = len(result)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	msgRows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, provider, model, system_prompt, sequence
		 FROM messages ORDER BY conversation_id, sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var m chat.Message
		var msgID, convID int64
		if err := msgRows.Scan(&msgID, &convID, &m.Role, &m.Content,
			&m.API.Provider, &m.API.Model, &m.SystemPrompt, &m.Sequence); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = &msgID
		if i, ok := index[convID]; ok {
			result[i].Messages = append(result[i].Messages, m)
		}
	}
	return result, msgRows.Err()
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM conversations WHERE id = $1`, id,
	).Scan(&id, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get conversation %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation %d: %w", id, err)
	}
	c.ID = &id

	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, provider, model, system_prompt, sequence
		 FROM messages WHERE conversation_id = $1 ORDER BY sequence ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation %d messages: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m chat.Message
		var msgID int64
		if err := rows.Scan(&msgID, &m.Role, &m.Content,
			&m.API.Provider, &m.API.Model, &m.SystemPrompt, &m.Sequence); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = &msgID
		c.Messages = append(c.Messages, m)
	}
	return &c, rows.Err()
}

func (s *Store) SaveConversation(ctx context.Context, conv chat.Conversation) (*chat.Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("save conversation: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored := conv.Clone()
	if stored.ID == nil {
		var id int64
		err = tx.QueryRow(ctx,
			`INSERT INTO conversations (name) VALUES ($1) RETURNING id`,
			stored.Name,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		stored.ID = &id
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE conversations SET name = $2, updated_at = NOW() WHERE id = $1`,
			*stored.ID, stored.Name)
		if err != nil {
			return nil, fmt.Errorf("update conversation %d: %w", *stored.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("update conversation %d: %w", *stored.ID, domain.ErrNotFound)
		}
	}

	for i := range stored.Messages {
		m := &stored.Messages[i]
		var msgID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO messages (conversation_id, role, content, provider, model, system_prompt, sequence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (conversation_id, sequence) DO UPDATE
			 SET role = EXCLUDED.role,
			     content = EXCLUDED.content,
			     provider = EXCLUDED.provider,
			     model = EXCLUDED.model,
			     system_prompt = EXCLUDED.system_prompt
			 RETURNING id`,
			*stored.ID, m.Role, m.Content, m.API.Provider, m.API.Model, m.SystemPrompt, m.Sequence,
		).Scan(&msgID)
		if err != nil {
			return nil, fmt.Errorf("upsert message seq %d: %w", m.Sequence, err)
		}
		m.ID = &msgID
	}

	// Sequences past the end of the saved log no longer exist.
	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1 AND sequence >= $2`,
		*stored.ID, len(stored.Messages)); err != nil {
		return nil, fmt.Errorf("trim messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("save conversation: commit: %w", err)
	}
	return &stored, nil
}

func (s *Store) UpdateMessageContent(ctx context.Context, messageID int64, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET content = $2 WHERE id = $1`, messageID, content)
	if err != nil {
		return fmt.Errorf("update message %d: %w", messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update message %d: %w", messageID, domain.ErrNotFound)
	}
	_, _ = s.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW()
		 WHERE id = (SELECT conversation_id FROM messages WHERE id = $1)`, messageID)
	return nil
}

func (s *Store) ForkConversation(ctx context.Context, id int64, sequence int) (*chat.Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("fork conversation: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var provider, model, systemPrompt string
	err = tx.QueryRow(ctx,
		`SELECT provider, model, system_prompt FROM messages
		 WHERE conversation_id = $1 AND sequence = $2`,
		id, sequence,
	).Scan(&provider, &model, &systemPrompt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fork conversation %d at sequence %d: %w", id, sequence, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("fork conversation %d: %w", id, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1 AND sequence > $2`,
		id, sequence); err != nil {
		return nil, fmt.Errorf("fork conversation %d: cut: %w", id, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content, provider, model, system_prompt, sequence)
		 VALUES ($1, $2, '', $3, $4, $5, $6)`,
		id, chat.RoleAssistant, provider, model, systemPrompt, sequence+1); err != nil {
		return nil, fmt.Errorf("fork conversation %d: placeholder: %w", id, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("fork conversation %d: touch: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("fork conversation: commit: %w", err)
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) GetSystemPrompt(ctx context.Context) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM system_prompt WHERE id = 1`).Scan(&content)
	if err != nil {
		return "", fmt.Errorf("get system prompt: %w", err)
	}
	return content, nil
}

func (s *Store) SetSystemPrompt(ctx context.Context, content string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE system_prompt SET content = $1, updated_at = NOW() WHERE id = 1`, content)
	if err != nil {
		return fmt.Errorf("set system prompt: %w", err)
	}
	return nil
}
