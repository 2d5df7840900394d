// Package seats resolves party seat caps and the term effective for a
// session.
package seats

import (
	"context"
	"errors"
	"time"

	"council-motions/internal/models"

	"gorm.io/gorm"
)

// Table reads seat allocations from the local term distribution tables.
type Table struct {
	db *gorm.DB
}

func NewTable(db *gorm.DB) *Table {
	return &Table{db: db}
}

func (t *Table) SeatCap(ctx context.Context, partyID, termID uint) (uint, bool, error) {
	var alloc models.SeatAllocation
	err := t.db.WithContext(ctx).
		Where("term_id = ? AND party_id = ?", termID, partyID).
		First(&alloc).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return alloc.Seats, true, nil
}

// ResolveEffectiveTerm returns the term attached to the session, else the
// term whose day range contains at.
func (t *Table) ResolveEffectiveTerm(ctx context.Context, sessionID *uint, at time.Time) (uint, bool, error) {
	if sessionID != nil {
		var s models.Session
		err := t.db.WithContext(ctx).First(&s, *sessionID).Error
		switch {
		case err == nil:
			if s.TermID != nil {
				return *s.TermID, true, nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return 0, false, err
		}
	}

	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	var term models.Term
	err := t.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", at, day).
		Order("start_date DESC").
		First(&term).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return term.ID, true, nil
}
