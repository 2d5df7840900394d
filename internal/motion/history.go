package motion

import (
	"context"
	"fmt"
	"strings"

	"council-motions/internal/models"
)

type NoteRequest struct {
	MotionID uint
	Reason   string
	Actor    models.Actor
}

// History returns the ledger of a motion, oldest first, with linked votes.
func (e *Engine) History(ctx context.Context, motionID uint) ([]models.StatusHistoryEntry, error) {
	if _, err := e.store.GetMotion(ctx, motionID); err != nil {
		return nil, err
	}
	return e.store.ListHistory(ctx, motionID)
}

// AppendNote adds a bare audit entry carrying the motion's current status.
func (e *Engine) AppendNote(ctx context.Context, req NoteRequest) (models.StatusHistoryEntry, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return models.StatusHistoryEntry{}, fieldErr("reason", ErrInvalidMotion, "a note needs text")
	}
	defer e.locks.Lock(motionLockKey(req.MotionID))()
	var entry models.StatusHistoryEntry
	err := e.within(ctx, func(tx Tx) error {
		m, err := tx.LockMotion(ctx, req.MotionID)
		if err != nil {
			return err
		}
		entry = models.StatusHistoryEntry{
			MotionID:    m.ID,
			Status:      m.Status,
			CommitteeID: m.CommitteeID,
			SessionID:   m.SessionID,
			ActorID:     req.Actor.ID,
			ActorName:   req.Actor.Name,
			Reason:      req.Reason,
			CreatedAt:   e.clock.Now(),
		}
		return tx.AppendHistory(ctx, &entry)
	})
	if err != nil {
		return models.StatusHistoryEntry{}, err
	}
	e.logger.Info("note appended",
		"event", "motion_note_appended",
		"motion_id", req.MotionID,
		"history_entry_id", entry.ID,
	)
	return entry, nil
}

// DeleteHistoryEntry removes a ledger entry. The motion status is left as
// is, and votes linked to the entry stay in their rounds unlinked.
func (e *Engine) DeleteHistoryEntry(ctx context.Context, motionID, entryID uint, actor models.Actor) error {
	if !actor.Privileged {
		return fmt.Errorf("%w: deleting history entries requires a privileged actor", ErrForbidden)
	}
	defer e.locks.Lock(motionLockKey(motionID))()
	err := e.within(ctx, func(tx Tx) error {
		if _, err := tx.LockMotion(ctx, motionID); err != nil {
			return err
		}
		return tx.DeleteHistoryEntry(ctx, motionID, entryID)
	})
	if err != nil {
		return err
	}
	e.logger.Warn("history entry deleted",
		"event", "motion_history_entry_deleted",
		"motion_id", motionID,
		"history_entry_id", entryID,
		"actor_id", actor.ID,
	)
	return nil
}
