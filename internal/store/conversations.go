package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helix-labs/helix/internal/types"
)

// ConversationStore persists conversations and their append-only message
// history. Messages are never mutated after creation. Concurrent turns on
// the same conversation id may interleave message order; that is a known
// constraint, not a guarded case.
type ConversationStore struct {
	db *pgxpool.Pool
}

func NewConversationStore(db *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create starts a new conversation bound to a persona.
func (s *ConversationStore) Create(ctx context.Context, personaID string) (*types.Conversation, error) {
	conv := &types.Conversation{
		ID:        uuid.NewString(),
		PersonaID: personaID,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, persona_id)
		VALUES ($1, $2)
		RETURNING created_at
	`, conv.ID, conv.PersonaID).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Get loads a conversation, requiring it to belong to the given persona.
// A conversation's persona never changes, so a mismatch means the caller
// supplied someone else's conversation id.
func (s *ConversationStore) Get(ctx context.Context, conversationID, personaID string) (*types.Conversation, error) {
	var conv types.Conversation
	err := s.db.QueryRow(ctx, `
		SELECT id, persona_id, created_at
		FROM conversations
		WHERE id = $1 AND persona_id = $2
	`, conversationID, personaID).Scan(&conv.ID, &conv.PersonaID, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &conv, nil
}

// Recent returns up to n most recent messages in chronological order.
func (s *ConversationStore) Recent(ctx context.Context, conversationID string, n int) ([]types.StoredMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, cost_cents, created_at
		FROM (
			SELECT id, conversation_id, role, content, cost_cents, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []types.StoredMessage
	for rows.Next() {
		var m types.StoredMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CostCents, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessage appends one message row. User messages carry zero cost.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID, role, content string, costCents int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, cost_cents)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), conversationID, role, content, costCents)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}
