package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/helix-labs/helix/internal/types"
)

const personaCacheTTL = 5 * time.Minute
const personaKeyPrefix = "helix:persona:"

// PersonaStore looks up personas. A persona is visible to a caller when they
// own it or when it is global (no owner).
type PersonaStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewPersonaStore(db *pgxpool.Pool, rdb *redis.Client) *PersonaStore {
	return &PersonaStore{db: db, redis: rdb}
}

func (s *PersonaStore) PersonaByID(ctx context.Context, personaID, callerID string) (*types.Persona, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, personaKeyPrefix+personaID).Bytes()
		if err == nil {
			var p types.Persona
			if err := json.Unmarshal(cached, &p); err == nil {
				if visible(&p, callerID) {
					return &p, nil
				}
				return nil, ErrNotFound
			}
		}
	}

	p, err := s.lookupDB(ctx, personaID)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(p); err == nil {
			s.redis.Set(ctx, personaKeyPrefix+personaID, data, personaCacheTTL)
		}
	}

	if !visible(p, callerID) {
		return nil, ErrNotFound
	}
	return p, nil
}

// Invalidate drops a persona from the cache, for use after out-of-band edits.
func (s *PersonaStore) Invalidate(ctx context.Context, personaID string) {
	if s.redis != nil {
		s.redis.Del(ctx, personaKeyPrefix+personaID)
	}
}

func (s *PersonaStore) lookupDB(ctx context.Context, personaID string) (*types.Persona, error) {
	var p types.Persona
	var ownerID, specialization, avatarURL *string

	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, engine_id, label, specialization, system_prompt,
		       temperature, max_tokens, avatar_url
		FROM personas
		WHERE id = $1
	`, personaID).Scan(
		&p.ID,
		&ownerID,
		&p.EngineID,
		&p.Label,
		&specialization,
		&p.SystemPrompt,
		&p.Temperature,
		&p.MaxTokens,
		&avatarURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query personas: %w", err)
	}

	if ownerID != nil {
		p.OwnerID = *ownerID
	}
	if specialization != nil {
		p.Specialization = *specialization
	}
	if avatarURL != nil {
		p.AvatarURL = *avatarURL
	}
	return &p, nil
}

func visible(p *types.Persona, callerID string) bool {
	return p.OwnerID == "" || p.OwnerID == callerID
}
