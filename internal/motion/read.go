package motion

import (
	"context"

	"council-motions/internal/models"
)

// Motion returns the current status, committee and session of a motion.
func (e *Engine) Motion(ctx context.Context, id uint) (models.Motion, error) {
	return e.store.GetMotion(ctx, id)
}

// Board is the display snapshot of one motion.
type Board struct {
	Motion  models.Motion
	Rounds  []RoundView
	History []models.StatusHistoryEntry
}

// Snapshot loads the motion with its rounds and history for display.
func (e *Engine) Snapshot(ctx context.Context, id uint) (Board, error) {
	m, err := e.store.GetMotion(ctx, id)
	if err != nil {
		return Board{}, err
	}
	rounds, err := e.Rounds(ctx, id)
	if err != nil {
		return Board{}, err
	}
	history, err := e.store.ListHistory(ctx, id)
	if err != nil {
		return Board{}, err
	}
	return Board{Motion: m, Rounds: rounds, History: history}, nil
}
