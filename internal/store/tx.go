package store

import (
	"context"
	"errors"
	"fmt"

	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/tally"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// unitOfWork implements motion.Tx on an open gorm transaction. Row locks
// are FOR UPDATE on postgres; sqlite serializes through its single
// connection and drops the locking clause.
type unitOfWork struct {
	db   *gorm.DB
	repo *Repository
}

func roundScope(motionID uint, key tally.Key) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("motion_id = ? AND vote_type = ? AND vote_name = ?", motionID, key.Type, key.Name)
	}
}

func (u *unitOfWork) LockMotion(ctx context.Context, id uint) (models.Motion, error) {
	var m models.Motion
	err := u.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, id).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Motion{}, fmt.Errorf("%w: %d", motion.ErrMotionNotFound, id)
		}
		return models.Motion{}, u.repo.logError("motions_repo_lock_motion_failed", err, "motion_id", id)
	}
	return m, nil
}

func (u *unitOfWork) CreateMotion(ctx context.Context, m *models.Motion) error {
	// Parties are reference rows; only the join rows are written.
	if err := u.db.WithContext(ctx).Omit("Parties.*").Create(m).Error; err != nil {
		return u.repo.logError("motions_repo_create_motion_failed", err, "title", m.Title)
	}
	return nil
}

func (u *unitOfWork) SaveMotion(ctx context.Context, m *models.Motion) error {
	err := u.db.WithContext(ctx).
		Model(&models.Motion{ID: m.ID}).
		Updates(map[string]any{
			"status":       m.Status,
			"committee_id": m.CommitteeID,
			"session_id":   m.SessionID,
		}).
		Error
	if err != nil {
		return u.repo.logError("motions_repo_save_motion_failed", err, "motion_id", m.ID)
	}
	return nil
}

func (u *unitOfWork) LockRound(ctx context.Context, motionID uint, key tally.Key) (models.VoteRound, error) {
	row := models.VoteRound{MotionID: motionID, VoteType: key.Type, VoteName: key.Name}
	if err := u.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return models.VoteRound{}, u.repo.logError("motions_repo_create_round_failed", err,
			"motion_id", motionID, "vote_type", key.Type, "vote_name", key.Name)
	}
	var locked models.VoteRound
	err := u.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(roundScope(motionID, key)).
		First(&locked).
		Error
	if err != nil {
		return models.VoteRound{}, u.repo.logError("motions_repo_lock_round_failed", err,
			"motion_id", motionID, "vote_type", key.Type, "vote_name", key.Name)
	}
	return locked, nil
}

func (u *unitOfWork) RoundRecords(ctx context.Context, motionID uint, key tally.Key) ([]models.VoteRecord, error) {
	var rows []models.VoteRecord
	err := u.db.WithContext(ctx).
		Scopes(roundScope(motionID, key)).
		Order("id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, u.repo.logError("motions_repo_round_records_failed", err,
			"motion_id", motionID, "vote_type", key.Type, "vote_name", key.Name)
	}
	return rows, nil
}

func (u *unitOfWork) SaveVote(ctx context.Context, rec *models.VoteRecord) error {
	if err := u.db.WithContext(ctx).Omit(clause.Associations).Save(rec).Error; err != nil {
		return u.repo.logError("motions_repo_save_vote_failed", err,
			"motion_id", rec.MotionID, "party_id", rec.PartyID, "vote_type", rec.VoteType, "vote_name", rec.VoteName)
	}
	return nil
}

func (u *unitOfWork) DeleteVotes(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := u.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.VoteRecord{}).Error; err != nil {
		return u.repo.logError("motions_repo_delete_votes_failed", err, "vote_ids", ids)
	}
	return nil
}

func (u *unitOfWork) WriteRound(ctx context.Context, round *models.VoteRound, totals tally.Totals) error {
	key := tally.Key{Type: round.VoteType, Name: round.VoteName}
	shared := map[string]any{
		"total_favor":   totals.Favor,
		"total_against": totals.Against,
		"outcome":       totals.Outcome,
	}
	if err := u.db.WithContext(ctx).Model(&models.VoteRecord{}).Scopes(roundScope(round.MotionID, key)).Updates(shared).Error; err != nil {
		return u.repo.logError("motions_repo_write_round_records_failed", err,
			"motion_id", round.MotionID, "vote_type", key.Type, "vote_name", key.Name)
	}
	next := round.Revision + 1
	err := u.db.WithContext(ctx).
		Model(&models.VoteRound{ID: round.ID}).
		Updates(map[string]any{
			"total_favor":   totals.Favor,
			"total_against": totals.Against,
			"outcome":       totals.Outcome,
			"revision":      next,
		}).
		Error
	if err != nil {
		return u.repo.logError("motions_repo_write_round_failed", err, "round_id", round.ID)
	}
	round.TotalFavor = totals.Favor
	round.TotalAgainst = totals.Against
	round.Outcome = totals.Outcome
	round.Revision = next
	return nil
}

func (u *unitOfWork) DeleteRound(ctx context.Context, round models.VoteRound) error {
	if err := u.db.WithContext(ctx).Delete(&models.VoteRound{}, round.ID).Error; err != nil {
		return u.repo.logError("motions_repo_delete_round_failed", err, "round_id", round.ID)
	}
	return nil
}

func (u *unitOfWork) AppendHistory(ctx context.Context, entry *models.StatusHistoryEntry) error {
	if err := u.db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error; err != nil {
		return u.repo.logError("motions_repo_append_history_failed", err, "motion_id", entry.MotionID, "status", entry.Status)
	}
	return nil
}

func (u *unitOfWork) LinkVotes(ctx context.Context, entryID uint, voteIDs []uint) error {
	err := u.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Where("id IN ?", voteIDs).
		Update("history_entry_id", entryID).
		Error
	if err != nil {
		return u.repo.logError("motions_repo_link_votes_failed", err, "history_entry_id", entryID)
	}
	return nil
}

func (u *unitOfWork) LastReferral(ctx context.Context, motionID uint) (models.StatusHistoryEntry, bool, error) {
	var entry models.StatusHistoryEntry
	err := u.db.WithContext(ctx).
		Where("motion_id = ? AND status = ?", motionID, models.StatusReferToCommittee).
		Order("created_at DESC").
		Order("id DESC").
		First(&entry).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.StatusHistoryEntry{}, false, nil
		}
		return models.StatusHistoryEntry{}, false, u.repo.logError("motions_repo_last_referral_failed", err, "motion_id", motionID)
	}
	return entry, true, nil
}

func (u *unitOfWork) DeleteHistoryEntry(ctx context.Context, motionID, entryID uint) error {
	var entry models.StatusHistoryEntry
	err := u.db.WithContext(ctx).Where("id = ? AND motion_id = ?", entryID, motionID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", motion.ErrHistoryEntryNotFound, entryID)
		}
		return u.repo.logError("motions_repo_get_history_entry_failed", err, "history_entry_id", entryID)
	}
	err = u.db.WithContext(ctx).
		Model(&models.VoteRecord{}).
		Where("history_entry_id = ?", entryID).
		Update("history_entry_id", gorm.Expr("NULL")).
		Error
	if err != nil {
		return u.repo.logError("motions_repo_unlink_votes_failed", err, "history_entry_id", entryID)
	}
	if err := u.db.WithContext(ctx).Delete(&entry).Error; err != nil {
		return u.repo.logError("motions_repo_delete_history_entry_failed", err, "history_entry_id", entryID)
	}
	return nil
}

var _ motion.Tx = (*unitOfWork)(nil)
