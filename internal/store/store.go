// Package store is the gorm repository behind the motion engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"council-motions/internal/db"
	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/tally"

	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(gdb *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     gdb,
		logger: logger,
	}
}

// Within runs fn in a database transaction. Lock waits, serialization
// failures and duplicate round rows surface as
// motion.ErrConcurrentModification.
func (r *Repository) Within(ctx context.Context, fn func(motion.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&unitOfWork{db: tx, repo: r})
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, motion.ErrConcurrentModification) && db.IsConflict(err) {
		r.logger.Warn("transaction conflict",
			"event", "motions_repo_tx_conflict",
			"module", "store",
			"layer", "adapter",
			"error", err.Error(),
		)
		return fmt.Errorf("%w: %v", motion.ErrConcurrentModification, err)
	}
	return err
}

func (r *Repository) GetMotion(ctx context.Context, id uint) (models.Motion, error) {
	var m models.Motion
	err := r.db.WithContext(ctx).Preload("Parties").First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Motion{}, fmt.Errorf("%w: %d", motion.ErrMotionNotFound, id)
		}
		return models.Motion{}, r.logError("motions_repo_get_motion_failed", err, "motion_id", id)
	}
	return m, nil
}

func (r *Repository) ListRound(ctx context.Context, motionID uint, key tally.Key) ([]models.VoteRecord, error) {
	var rows []models.VoteRecord
	err := r.db.WithContext(ctx).
		Select("vote_records.*").
		Joins("LEFT JOIN parties ON parties.id = vote_records.party_id").
		Where("vote_records.motion_id = ? AND vote_records.vote_type = ? AND vote_records.vote_name = ?", motionID, key.Type, key.Name).
		Order("parties.name ASC").
		Order("vote_records.id ASC").
		Preload("Party").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("motions_repo_list_round_failed", err,
			"motion_id", motionID,
			"vote_type", key.Type,
			"vote_name", key.Name,
		)
	}
	return rows, nil
}

func (r *Repository) ListRounds(ctx context.Context, motionID uint) ([]models.VoteRound, error) {
	var rows []models.VoteRound
	err := r.db.WithContext(ctx).
		Where("motion_id = ?", motionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("motions_repo_list_rounds_failed", err, "motion_id", motionID)
	}
	return rows, nil
}

func (r *Repository) ListHistory(ctx context.Context, motionID uint) ([]models.StatusHistoryEntry, error) {
	var rows []models.StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Preload("Votes", func(tx *gorm.DB) *gorm.DB { return tx.Order("vote_records.id ASC") }).
		Preload("Votes.Party").
		Where("motion_id = ?", motionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("motions_repo_list_history_failed", err, "motion_id", motionID)
	}
	return rows, nil
}

func (r *Repository) Party(ctx context.Context, id uint) (models.Party, error) {
	var p models.Party
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Party{}, fmt.Errorf("%w: %d", motion.ErrUnknownParty, id)
		}
		return models.Party{}, r.logError("motions_repo_get_party_failed", err, "party_id", id)
	}
	return p, nil
}

func (r *Repository) Committee(ctx context.Context, id uint) (models.Committee, error) {
	var c models.Committee
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Committee{}, fmt.Errorf("%w: %d", motion.ErrUnresolvedCommittee, id)
		}
		return models.Committee{}, r.logError("motions_repo_get_committee_failed", err, "committee_id", id)
	}
	return c, nil
}

func (r *Repository) Session(ctx context.Context, id uint) (models.Session, error) {
	var s models.Session
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Session{}, fmt.Errorf("%w: %d", motion.ErrUnresolvedSession, id)
		}
		return models.Session{}, r.logError("motions_repo_get_session_failed", err, "session_id", id)
	}
	return s, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "store",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("motions repository operation failed", fields...)
	return err
}

var _ motion.Store = (*Repository)(nil)
var _ motion.Directory = (*Repository)(nil)
