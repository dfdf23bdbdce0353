package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lp-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type LPHistoryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewLPHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *LPHistoryRepository {
	return &LPHistoryRepository{db: sqlDB, logger: logger}
}

// Record inserts one row per (player, match); a repeat of the same match is ignored.
func (r *LPHistoryRepository) Record(ctx context.Context, h domain.LPHistory) error {
	id := h.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}
	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lp_history (id, puuid, match_id, queue, old_tier, old_division, old_lp,
		                        new_tier, new_division, new_lp, lp_change, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (puuid, match_id) DO NOTHING`,
		id, h.Puuid, h.MatchID, h.Queue.String(),
		string(h.OldTier), string(h.OldDiv), h.OldLP,
		string(h.NewTier), string(h.NewDiv), h.NewLP,
		h.LPChange, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert lp history: %w", err)
	}
	return nil
}

func (r *LPHistoryRepository) GetByPuuid(ctx context.Context, puuid string, limit int) ([]domain.LPHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, puuid, match_id, queue, old_tier, old_division, old_lp,
		       new_tier, new_division, new_lp, lp_change, created_at
		FROM lp_history
		WHERE puuid = ?
		ORDER BY created_at DESC
		LIMIT ?`, puuid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lp history: %w", err)
	}
	defer rows.Close()

	var out []domain.LPHistory
	for rows.Next() {
		var (
			h     domain.LPHistory
			queue string
		)
		err := rows.Scan(&h.ID, &h.Puuid, &h.MatchID, &queue,
			&h.OldTier, &h.OldDiv, &h.OldLP,
			&h.NewTier, &h.NewDiv, &h.NewLP,
			&h.LPChange, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lp history: %w", err)
		}
		if queue == domain.QueueFlex.String() {
			h.Queue = domain.QueueFlex
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
