package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helix-labs/helix/internal/types"
)

// UserStore reads caller identity and budget state and issues atomic budget
// deductions. The budget is the single shared mutable counter in the system;
// every deduction happens in one conditional UPDATE so concurrent requests
// from the same caller cannot lose updates.
type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

// CallerByKeyHash resolves an API key hash to its user's budget state.
func (s *UserStore) CallerByKeyHash(ctx context.Context, keyHash string) (*types.BudgetState, error) {
	var b types.BudgetState
	err := s.db.QueryRow(ctx, `
		SELECT id, budget_cents, max_budget_per_question_cents,
		       max_baton_passes, truthiness_threshold
		FROM users
		WHERE api_key_hash = $1
	`, keyHash).Scan(
		&b.UserID,
		&b.BudgetCents,
		&b.MaxBudgetPerQuestionCents,
		&b.MaxBatonPasses,
		&b.TruthinessThreshold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query users by key: %w", err)
	}
	return &b, nil
}

// BudgetState reads the current budget record for a user.
func (s *UserStore) BudgetState(ctx context.Context, userID string) (*types.BudgetState, error) {
	var b types.BudgetState
	err := s.db.QueryRow(ctx, `
		SELECT id, budget_cents, max_budget_per_question_cents,
		       max_baton_passes, truthiness_threshold
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&b.UserID,
		&b.BudgetCents,
		&b.MaxBudgetPerQuestionCents,
		&b.MaxBatonPasses,
		&b.TruthinessThreshold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query users: %w", err)
	}
	return &b, nil
}

// Deduct atomically subtracts cents from the user's budget and returns the
// remaining balance. The guard keeps the balance non-negative: a deduction
// that would overdraw fails with ErrInsufficientBudget and changes nothing.
func (s *UserStore) Deduct(ctx context.Context, userID string, cents int64) (int64, error) {
	if cents < 0 {
		return 0, fmt.Errorf("negative deduction %d", cents)
	}

	var remaining int64
	err := s.db.QueryRow(ctx, `
		UPDATE users
		SET budget_cents = budget_cents - $2
		WHERE id = $1 AND budget_cents >= $2
		RETURNING budget_cents
	`, userID, cents).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("deduct budget: %w", err)
	}

	// Either the user is gone or the balance was short.
	if _, lookupErr := s.BudgetState(ctx, userID); lookupErr != nil {
		return 0, lookupErr
	}
	return 0, ErrInsufficientBudget
}
