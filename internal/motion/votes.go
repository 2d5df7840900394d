package motion

import (
	"context"
	"errors"
	"fmt"
	"math"

	"council-motions/internal/models"
	"council-motions/internal/tally"
)

// VoteEntry is one party's votes within a round batch.
type VoteEntry struct {
	PartyID uint
	Approve uint
	Reject  uint
	Notes   string
}

// RoundEntries is a batch of vote entries tagged with one round key.
type RoundEntries struct {
	Key     tally.Key
	Entries []VoteEntry
}

type UpsertVoteRequest struct {
	MotionID uint
	Key      tally.Key
	PartyID  uint
	Approve  uint
	Reject   uint
	Notes    string
	// IfRevision, when set, must equal the round's current revision.
	IfRevision *uint64
	// AllowUnresolvedSeats skips the seat cap when no term or allocation
	// can be resolved, regardless of the engine's seat policy.
	AllowUnresolvedSeats bool
}

type RecordRoundRequest struct {
	MotionID uint
	Round    RoundEntries
	// Replace removes parties of the round that are missing from the batch.
	Replace bool
	// ApplyOutcome moves the motion according to the round outcome:
	// adopted to approved, rejected to rejected, a referral round to
	// refer_to_committee or refer_no_majority. A tie leaves it unchanged.
	ApplyOutcome         bool
	CommitteeID          *uint
	Reason               string
	Actor                models.Actor
	IfRevision           *uint64
	AllowUnresolvedSeats bool
}

// RoundView is a round with its live totals.
type RoundView struct {
	Key      tally.Key
	Revision uint64
	Totals   tally.Totals
	Records  []models.VoteRecord
}

type RoundResult struct {
	RoundView
	// Committed is set when ApplyOutcome moved the motion.
	Committed *CommittedStatus
}

type roundWrite struct {
	round   models.VoteRound
	totals  tally.Totals
	records []models.VoteRecord
	touched []uint
}

func (w roundWrite) view() RoundView {
	return RoundView{
		Key:      tally.Key{Type: w.round.VoteType, Name: w.round.VoteName},
		Revision: w.round.Revision,
		Totals:   w.totals,
		Records:  w.records,
	}
}

func (e *Engine) reject(reason string, err error) error {
	e.metrics.voteRejections.WithLabelValues(reason).Inc()
	return err
}

// checkEntries validates a batch before anything is written: vote type,
// non-empty entries, distinct known parties and seat caps for the term
// effective for sessionID.
func (e *Engine) checkEntries(ctx context.Context, sessionID *uint, round RoundEntries, allowUnresolved bool) error {
	if !round.Key.Type.Valid() {
		return e.reject("invalid_vote_type", fieldErr("vote_type", ErrInvalidVoteType, "%q", round.Key.Type))
	}
	if len(round.Entries) == 0 {
		return e.reject("empty", fieldErr("entries", ErrEmptyVote, "round %s has no entries", round.Key))
	}

	parties := make(map[uint]models.Party, len(round.Entries))
	for i, entry := range round.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if _, dup := parties[entry.PartyID]; dup {
			return e.reject("duplicate_party", fieldErr(field+".party_id", ErrDuplicateParty, "party %d", entry.PartyID))
		}
		if entry.Approve == 0 && entry.Reject == 0 {
			return e.reject("empty", fieldErr(field, ErrEmptyVote, "party %d cast no votes", entry.PartyID))
		}
		party, err := e.directory.Party(ctx, entry.PartyID)
		if err != nil {
			if errors.Is(err, ErrUnknownParty) {
				return e.reject("unknown_party", fieldErr(field+".party_id", ErrUnknownParty, "party %d", entry.PartyID))
			}
			return fmt.Errorf("load party %d: %w", entry.PartyID, err)
		}
		parties[entry.PartyID] = party
	}

	lenient := e.lenient || allowUnresolved
	termID, ok, err := e.seats.ResolveEffectiveTerm(ctx, sessionID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("resolve effective term: %w", err)
	}
	if !ok {
		if lenient {
			e.logger.Warn("seat caps skipped, no effective term",
				"event", "motion_seat_cap_skipped",
				"vote_type", round.Key.Type,
				"vote_name", round.Key.Name,
			)
			for i, entry := range round.Entries {
				if err := e.checkCeiling(i, entry); err != nil {
					return err
				}
			}
			return nil
		}
		return e.reject("unresolved_seats", fieldErr("session_id", ErrUnknownTermOrAllocation, "no effective term"))
	}

	for i, entry := range round.Entries {
		seats, ok, err := e.seats.SeatCap(ctx, entry.PartyID, termID)
		if err != nil {
			return fmt.Errorf("seat cap for party %d: %w", entry.PartyID, err)
		}
		if !ok {
			if lenient {
				e.logger.Warn("seat cap skipped, no allocation",
					"event", "motion_seat_cap_skipped",
					"party_id", entry.PartyID,
					"term_id", termID,
				)
				if err := e.checkCeiling(i, entry); err != nil {
					return err
				}
				continue
			}
			return e.reject("unresolved_seats", fieldErr(fmt.Sprintf("entries[%d].party_id", i), ErrUnknownTermOrAllocation,
				"no seat allocation for party %d in term %d", entry.PartyID, termID))
		}
		if !fitsCap(entry, seats) {
			return e.reject("seat_cap", &SeatCapError{
				PartyID:   entry.PartyID,
				PartyName: parties[entry.PartyID].Name,
				TermID:    termID,
				Cap:       seats,
				Cast:      models.SaturatingAdd(entry.Approve, entry.Reject),
			})
		}
		if err := e.checkCeiling(i, entry); err != nil {
			return err
		}
	}
	return nil
}

// MaxEntryVotes bounds approve+reject of one entry whether or not a seat cap
// applies, so stored counts and round sums fit signed integer columns.
const MaxEntryVotes = math.MaxInt32

// fitsCap reports approve+reject <= limit without overflowing.
func fitsCap(entry VoteEntry, limit uint) bool {
	return entry.Approve <= limit && entry.Reject <= limit-entry.Approve
}

func (e *Engine) checkCeiling(i int, entry VoteEntry) error {
	if fitsCap(entry, MaxEntryVotes) {
		return nil
	}
	return e.reject("vote_count_range", fieldErr(fmt.Sprintf("entries[%d]", i), ErrVoteCountOutOfRange,
		"party %d cast more than %d votes", entry.PartyID, MaxEntryVotes))
}

// applyRound writes a checked batch and re-aggregates the round. The round
// row lock taken first serializes concurrent writers of the same key.
func (e *Engine) applyRound(ctx context.Context, tx Tx, motionID uint, round RoundEntries, replace bool, ifRevision *uint64) (roundWrite, error) {
	rr, err := tx.LockRound(ctx, motionID, round.Key)
	if err != nil {
		return roundWrite{}, err
	}
	if ifRevision != nil && *ifRevision != rr.Revision {
		return roundWrite{}, fmt.Errorf("%w: round %s is at revision %d, not %d", ErrConcurrentModification, round.Key, rr.Revision, *ifRevision)
	}
	existing, err := tx.RoundRecords(ctx, motionID, round.Key)
	if err != nil {
		return roundWrite{}, err
	}
	byParty := make(map[uint]models.VoteRecord, len(existing))
	for _, rec := range existing {
		byParty[rec.PartyID] = rec
	}

	touched := make([]uint, 0, len(round.Entries))
	kept := make(map[uint]bool, len(round.Entries))
	for _, entry := range round.Entries {
		rec, ok := byParty[entry.PartyID]
		if !ok {
			rec = models.VoteRecord{
				MotionID: motionID,
				PartyID:  entry.PartyID,
				VoteType: round.Key.Type,
				VoteName: round.Key.Name,
			}
		}
		rec.ApproveCount = entry.Approve
		rec.RejectCount = entry.Reject
		rec.Notes = entry.Notes
		if err := tx.SaveVote(ctx, &rec); err != nil {
			return roundWrite{}, err
		}
		touched = append(touched, rec.ID)
		kept[entry.PartyID] = true
	}
	if replace {
		var stale []uint
		for _, rec := range existing {
			if !kept[rec.PartyID] {
				stale = append(stale, rec.ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.DeleteVotes(ctx, stale); err != nil {
				return roundWrite{}, err
			}
		}
	}

	w, err := e.reaggregate(ctx, tx, motionID, rr, round.Key)
	if err != nil {
		return roundWrite{}, err
	}
	w.touched = touched
	return w, nil
}

// reaggregate recomputes the round from its current records. A round left
// without records is removed instead.
func (e *Engine) reaggregate(ctx context.Context, tx Tx, motionID uint, rr models.VoteRound, key tally.Key) (roundWrite, error) {
	records, err := tx.RoundRecords(ctx, motionID, key)
	if err != nil {
		return roundWrite{}, err
	}
	if len(records) == 0 {
		if err := tx.DeleteRound(ctx, rr); err != nil {
			return roundWrite{}, err
		}
		return roundWrite{round: rr}, nil
	}
	totals := tally.Aggregate(key, records)
	if err := tx.WriteRound(ctx, &rr, totals); err != nil {
		return roundWrite{}, err
	}
	tally.Apply(records, totals)
	e.metrics.aggregations.WithLabelValues(string(key.Type)).Inc()
	return roundWrite{round: rr, totals: totals, records: records}, nil
}

func (e *Engine) within(ctx context.Context, fn func(Tx) error) error {
	err := e.store.Within(ctx, fn)
	if errors.Is(err, ErrConcurrentModification) {
		e.metrics.conflicts.Inc()
	}
	return err
}

func (e *Engine) openMotion(ctx context.Context, id uint) (models.Motion, error) {
	m, err := e.store.GetMotion(ctx, id)
	if err != nil {
		return models.Motion{}, err
	}
	if m.Status.Terminal() {
		return models.Motion{}, fmt.Errorf("%w: motion %d is %s", ErrTerminalStatus, id, m.Status)
	}
	return m, nil
}

// UpsertVote records or replaces one party's votes in a round outside of a
// status change.
func (e *Engine) UpsertVote(ctx context.Context, req UpsertVoteRequest) (models.VoteRecord, error) {
	log := e.logger.With("motion_id", req.MotionID, "vote_type", req.Key.Type, "vote_name", req.Key.Name, "party_id", req.PartyID)
	m, err := e.openMotion(ctx, req.MotionID)
	if err != nil {
		return models.VoteRecord{}, err
	}
	round := RoundEntries{Key: req.Key, Entries: []VoteEntry{{
		PartyID: req.PartyID,
		Approve: req.Approve,
		Reject:  req.Reject,
		Notes:   req.Notes,
	}}}
	if err := e.checkEntries(ctx, m.SessionID, round, req.AllowUnresolvedSeats); err != nil {
		log.Warn("vote rejected", "event", "motion_vote_rejected", "error", err.Error())
		return models.VoteRecord{}, err
	}

	defer e.locks.Lock(roundLockKey(m.ID, req.Key))()
	var out models.VoteRecord
	err = e.within(ctx, func(tx Tx) error {
		w, err := e.applyRound(ctx, tx, m.ID, round, false, req.IfRevision)
		if err != nil {
			return err
		}
		for _, rec := range w.records {
			if rec.PartyID == req.PartyID {
				out = rec
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("vote upsert failed", "event", "motion_vote_upsert_failed", "error", err.Error())
		return models.VoteRecord{}, err
	}
	log.Info("vote recorded",
		"event", "motion_vote_upserted",
		"vote_id", out.ID,
		"total_favor", out.TotalFavor,
		"total_against", out.TotalAgainst,
		"outcome", out.Outcome,
	)
	return out, nil
}

// RecordRound records a whole round in one unit of work and optionally
// applies its outcome to the motion status.
func (e *Engine) RecordRound(ctx context.Context, req RecordRoundRequest) (RoundResult, error) {
	key := req.Round.Key
	log := e.logger.With("motion_id", req.MotionID, "vote_type", key.Type, "vote_name", key.Name)
	m, err := e.openMotion(ctx, req.MotionID)
	if err != nil {
		return RoundResult{}, err
	}
	if err := e.checkEntries(ctx, m.SessionID, req.Round, req.AllowUnresolvedSeats); err != nil {
		log.Warn("round rejected", "event", "motion_round_rejected", "error", err.Error())
		return RoundResult{}, err
	}
	if req.ApplyOutcome && key.Type == models.VoteTypeReferToCommittee {
		if err := e.checkCommittee(ctx, req.CommitteeID, models.StatusReferToCommittee); err != nil {
			return RoundResult{}, err
		}
	}

	if req.ApplyOutcome {
		defer e.locks.Lock(motionLockKey(m.ID))()
	}
	defer e.locks.Lock(roundLockKey(m.ID, key))()

	var result RoundResult
	err = e.within(ctx, func(tx Tx) error {
		cur := m
		if req.ApplyOutcome {
			locked, err := tx.LockMotion(ctx, m.ID)
			if err != nil {
				return err
			}
			if locked.Status.Terminal() {
				return fmt.Errorf("%w: motion %d is %s", ErrTerminalStatus, m.ID, locked.Status)
			}
			cur = locked
		}
		w, err := e.applyRound(ctx, tx, m.ID, req.Round, req.Replace, req.IfRevision)
		if err != nil {
			return err
		}
		result.RoundView = w.view()
		if !req.ApplyOutcome {
			return nil
		}
		requested, ok := outcomeTarget(key.Type, w.totals.Outcome)
		if !ok {
			return nil
		}
		ch := statusChange{
			requested: requested,
			status:    requested,
			reason:    req.Reason,
			actor:     req.Actor,
			voteIDs:   w.touched,
		}
		if requested == models.StatusReferToCommittee {
			ch.committeeID = req.CommitteeID
		}
		committed, err := e.commitWithVotes(ctx, tx, &cur, ch, &w.totals)
		if err != nil {
			return err
		}
		result.Committed = &committed
		return nil
	})
	if err != nil {
		log.Warn("round recording failed", "event", "motion_round_failed", "error", err.Error())
		return RoundResult{}, err
	}
	if c := result.Committed; c != nil {
		e.metrics.transitions.WithLabelValues(string(c.Requested), string(c.Status)).Inc()
	}
	log.Info("round recorded",
		"event", "motion_round_recorded",
		"total_favor", result.Totals.Favor,
		"total_against", result.Totals.Against,
		"outcome", result.Totals.Outcome,
		"status_changed", result.Committed != nil,
	)
	return result, nil
}

// DeleteRound removes every record of a round.
func (e *Engine) DeleteRound(ctx context.Context, motionID uint, key tally.Key) error {
	if _, err := e.openMotion(ctx, motionID); err != nil {
		return err
	}
	defer e.locks.Lock(roundLockKey(motionID, key))()
	err := e.within(ctx, func(tx Tx) error {
		rr, err := tx.LockRound(ctx, motionID, key)
		if err != nil {
			return err
		}
		records, err := tx.RoundRecords(ctx, motionID, key)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("%w: motion %d round %s", ErrRoundNotFound, motionID, key)
		}
		ids := make([]uint, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		if err := tx.DeleteVotes(ctx, ids); err != nil {
			return err
		}
		return tx.DeleteRound(ctx, rr)
	})
	if err != nil {
		return err
	}
	e.logger.Info("round deleted",
		"event", "motion_round_deleted",
		"motion_id", motionID,
		"vote_type", key.Type,
		"vote_name", key.Name,
	)
	return nil
}

// DeleteVote removes one party's record and re-aggregates the rest of the
// round.
func (e *Engine) DeleteVote(ctx context.Context, motionID uint, key tally.Key, partyID uint) (RoundView, error) {
	if _, err := e.openMotion(ctx, motionID); err != nil {
		return RoundView{}, err
	}
	defer e.locks.Lock(roundLockKey(motionID, key))()
	var view RoundView
	err := e.within(ctx, func(tx Tx) error {
		rr, err := tx.LockRound(ctx, motionID, key)
		if err != nil {
			return err
		}
		records, err := tx.RoundRecords(ctx, motionID, key)
		if err != nil {
			return err
		}
		var target *models.VoteRecord
		for i := range records {
			if records[i].PartyID == partyID {
				target = &records[i]
			}
		}
		if target == nil {
			if len(records) == 0 {
				return fmt.Errorf("%w: motion %d round %s", ErrRoundNotFound, motionID, key)
			}
			return fmt.Errorf("%w: party %d in round %s", ErrVoteNotFound, partyID, key)
		}
		if err := tx.DeleteVotes(ctx, []uint{target.ID}); err != nil {
			return err
		}
		w, err := e.reaggregate(ctx, tx, motionID, rr, key)
		if err != nil {
			return err
		}
		view = w.view()
		return nil
	})
	if err != nil {
		return RoundView{}, err
	}
	e.logger.Info("vote deleted",
		"event", "motion_vote_deleted",
		"motion_id", motionID,
		"vote_type", key.Type,
		"vote_name", key.Name,
		"party_id", partyID,
	)
	return view, nil
}

// ListRound returns the records of a round ordered by party name.
func (e *Engine) ListRound(ctx context.Context, motionID uint, key tally.Key) ([]models.VoteRecord, error) {
	return e.store.ListRound(ctx, motionID, key)
}

// Rounds returns every round of a motion with live totals, oldest first.
func (e *Engine) Rounds(ctx context.Context, motionID uint) ([]RoundView, error) {
	rows, err := e.store.ListRounds(ctx, motionID)
	if err != nil {
		return nil, err
	}
	views := make([]RoundView, 0, len(rows))
	for _, rr := range rows {
		key := tally.Key{Type: rr.VoteType, Name: rr.VoteName}
		records, err := e.store.ListRound(ctx, motionID, key)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		views = append(views, RoundView{
			Key:      key,
			Revision: rr.Revision,
			Totals:   tally.Totals{Favor: rr.TotalFavor, Against: rr.TotalAgainst, Outcome: rr.Outcome},
			Records:  records,
		})
	}
	return views, nil
}
