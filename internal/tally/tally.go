// Package tally computes round totals and outcomes from per-party vote records.
package tally

import (
	"fmt"

	"council-motions/internal/models"
)

// Key identifies a vote round within a motion. The empty Name is the
// default round and is distinct from every named round.
type Key struct {
	Type models.VoteType
	Name string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%q", k.Type, k.Name)
}

// KeyOf returns the round key a record belongs to.
func KeyOf(rec models.VoteRecord) Key {
	return Key{Type: rec.VoteType, Name: rec.VoteName}
}

// Totals is the aggregate of one round.
type Totals struct {
	Favor   uint
	Against uint
	Outcome models.Outcome
}

// Majority reports whether favor strictly exceeds against.
func (t Totals) Majority() bool {
	return t.Favor > t.Against
}

// Decide applies the outcome rule for the given vote type. Unknown vote
// types yield the empty outcome.
func Decide(voteType models.VoteType, favor, against uint) models.Outcome {
	switch voteType {
	case models.VoteTypeRegular:
		switch {
		case favor > against:
			return models.OutcomeAdopted
		case against > favor:
			return models.OutcomeRejected
		default:
			return models.OutcomeTie
		}
	case models.VoteTypeReferToCommittee:
		if favor > against {
			return models.OutcomeReferred
		}
		return models.OutcomeNotReferred
	default:
		return ""
	}
}

// Aggregate sums the records of a round. Records with a different key are
// ignored so callers may pass an unfiltered motion listing.
func Aggregate(key Key, records []models.VoteRecord) Totals {
	var t Totals
	for _, rec := range records {
		if KeyOf(rec) != key {
			continue
		}
		t.Favor += rec.ApproveCount
		t.Against += rec.RejectCount
	}
	t.Outcome = Decide(key.Type, t.Favor, t.Against)
	return t
}

// Apply writes the shared totals onto every record in place and reports
// whether any record changed.
func Apply(records []models.VoteRecord, t Totals) bool {
	changed := false
	for i := range records {
		rec := &records[i]
		if rec.TotalFavor == t.Favor && rec.TotalAgainst == t.Against && rec.Outcome == t.Outcome {
			continue
		}
		rec.TotalFavor = t.Favor
		rec.TotalAgainst = t.Against
		rec.Outcome = t.Outcome
		changed = true
	}
	return changed
}

// Consistent reports whether every record carries totals equal to the
// true sums over the set.
func Consistent(key Key, records []models.VoteRecord) bool {
	want := Aggregate(key, records)
	for _, rec := range records {
		if rec.TotalFavor != want.Favor || rec.TotalAgainst != want.Against || rec.Outcome != want.Outcome {
			return false
		}
	}
	return true
}
