package motion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"council-motions/internal/models"
	"council-motions/internal/tally"
)

// Document is an answer document attached to a transition.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
}

type TransitionRequest struct {
	MotionID    uint
	Target      models.Status
	Reason      string
	CommitteeID *uint
	SessionID   *uint
	Document    *Document
	// Round carries votes cast as part of the change. Only approved,
	// rejected, refer_to_committee and voted_in_committee accept them.
	Round                *RoundEntries
	Replace              bool
	Actor                models.Actor
	AllowUnresolvedSeats bool
}

// CommittedStatus is what a transition actually did. Status differs from
// Requested when a referral vote had no majority.
type CommittedStatus struct {
	Status     models.Status
	Requested  models.Status
	Downgraded bool
	Motion     models.Motion
	Entry      models.StatusHistoryEntry
	// Totals is set when the transition carried votes.
	Totals *tally.Totals
}

type CreateMotionRequest struct {
	Title     string
	Body      string
	Rationale string
	Type      models.MotionType
	GroupID   uint
	SessionID *uint
	PartyIDs  []uint
	Actor     models.Actor
}

type storedDocument struct {
	ref, name, mediaType string
}

type statusChange struct {
	requested   models.Status
	status      models.Status
	committeeID *uint
	sessionID   *uint
	reason      string
	actor       models.Actor
	doc         storedDocument
	voteIDs     []uint
}

// NoMajorityNote is prefixed to the reason of a downgraded referral.
func NoMajorityNote(t tally.Totals) string {
	return fmt.Sprintf("No majority for referral to committee: %d in favor, %d against.", t.Favor, t.Against)
}

// outcomeTarget maps a round outcome to the status it requests. Referral
// rounds always request refer_to_committee and are gated on majority later.
func outcomeTarget(voteType models.VoteType, outcome models.Outcome) (models.Status, bool) {
	if voteType == models.VoteTypeReferToCommittee {
		return models.StatusReferToCommittee, true
	}
	switch outcome {
	case models.OutcomeAdopted:
		return models.StatusApproved, true
	case models.OutcomeRejected:
		return models.StatusRejected, true
	default:
		return "", false
	}
}

func (e *Engine) checkCommittee(ctx context.Context, id *uint, target models.Status) error {
	if id == nil {
		return fieldErr("committee_id", ErrUnresolvedCommittee, "required for %s", target)
	}
	c, err := e.directory.Committee(ctx, *id)
	if err != nil {
		if errors.Is(err, ErrUnresolvedCommittee) {
			return fieldErr("committee_id", ErrUnresolvedCommittee, "committee %d not found", *id)
		}
		return fmt.Errorf("load committee %d: %w", *id, err)
	}
	if !c.IsActive {
		return fieldErr("committee_id", ErrUnresolvedCommittee, "committee %d is inactive", *id)
	}
	return nil
}

func (e *Engine) checkSession(ctx context.Context, id *uint, target models.Status) error {
	if id == nil {
		return fieldErr("session_id", ErrUnresolvedSession, "required for %s", target)
	}
	if _, err := e.directory.Session(ctx, *id); err != nil {
		if errors.Is(err, ErrUnresolvedSession) {
			return fieldErr("session_id", ErrUnresolvedSession, "session %d not found", *id)
		}
		return fmt.Errorf("load session %d: %w", *id, err)
	}
	return nil
}

func (e *Engine) validateTransition(ctx context.Context, req TransitionRequest) error {
	if !req.Target.Valid() {
		return fieldErr("target", ErrInvalidStatus, "%q", req.Target)
	}
	if req.Target == models.StatusReferNoMajority {
		return fieldErr("target", ErrInvalidStatus, "%s only results from a failed referral vote", req.Target)
	}
	if req.Round != nil && !req.Target.AcceptsVotes() {
		return fieldErr("round", ErrVotesNotAccepted, "%s", req.Target)
	}
	if req.Round != nil && req.Target == models.StatusReferToCommittee && req.Round.Key.Type != models.VoteTypeReferToCommittee {
		return fieldErr("round.vote_type", ErrInvalidVoteType, "%s needs a %s round, got %q",
			req.Target, models.VoteTypeReferToCommittee, req.Round.Key.Type)
	}

	switch req.Target {
	case models.StatusReferToCommittee, models.StatusVotedInCommittee:
		if err := e.checkCommittee(ctx, req.CommitteeID, req.Target); err != nil {
			return err
		}
	case models.StatusTabled:
		if err := e.checkSession(ctx, req.SessionID, req.Target); err != nil {
			return err
		}
	case models.StatusAnswered:
		if req.Document == nil || len(req.Document.Data) == 0 {
			return fieldErr("document", ErrAnswerDocumentRequired, "required for %s", req.Target)
		}
	}
	if req.SessionID != nil && req.Target != models.StatusTabled {
		if err := e.checkSession(ctx, req.SessionID, req.Target); err != nil {
			return err
		}
	}
	if doc := req.Document; doc != nil {
		if e.documents == nil {
			return fieldErr("document", ErrDocumentRejected, "no document store configured")
		}
		if err := e.documents.Validate(doc.MediaType, len(doc.Data)); err != nil {
			return fieldErr("document", ErrDocumentRejected, "%v", err)
		}
	}
	return nil
}

// referralCommittee is the committee the motion is or was last referred to.
func referralCommittee(ctx context.Context, tx Tx, m models.Motion) (uint, bool, error) {
	if m.Status == models.StatusReferToCommittee && m.CommitteeID != nil {
		return *m.CommitteeID, true, nil
	}
	entry, ok, err := tx.LastReferral(ctx, m.ID)
	if err != nil || !ok || entry.CommitteeID == nil {
		return 0, false, err
	}
	return *entry.CommitteeID, true, nil
}

func (e *Engine) commitStatus(ctx context.Context, tx Tx, m *models.Motion, ch statusChange) (models.StatusHistoryEntry, error) {
	m.Status = ch.status
	if ch.committeeID != nil {
		m.CommitteeID = ch.committeeID
	}
	if ch.sessionID != nil {
		m.SessionID = ch.sessionID
	}
	entry := models.StatusHistoryEntry{
		MotionID:     m.ID,
		Status:       ch.status,
		CommitteeID:  ch.committeeID,
		SessionID:    ch.sessionID,
		ActorID:      ch.actor.ID,
		ActorName:    ch.actor.Name,
		Reason:       ch.reason,
		DocumentRef:  ch.doc.ref,
		DocumentName: ch.doc.name,
		DocumentType: ch.doc.mediaType,
		CreatedAt:    e.clock.Now(),
	}
	if err := tx.AppendHistory(ctx, &entry); err != nil {
		return models.StatusHistoryEntry{}, err
	}
	if len(ch.voteIDs) > 0 {
		if err := tx.LinkVotes(ctx, entry.ID, ch.voteIDs); err != nil {
			return models.StatusHistoryEntry{}, err
		}
	}
	if err := tx.SaveMotion(ctx, m); err != nil {
		return models.StatusHistoryEntry{}, err
	}
	return entry, nil
}

// commitWithVotes applies the referral majority gate to a change that
// carried votes and commits it.
func (e *Engine) commitWithVotes(ctx context.Context, tx Tx, m *models.Motion, ch statusChange, totals *tally.Totals) (CommittedStatus, error) {
	downgraded := false
	if totals != nil && ch.requested == models.StatusReferToCommittee && !totals.Majority() {
		downgraded = true
		ch.status = models.StatusReferNoMajority
		ch.committeeID = nil
		note := NoMajorityNote(*totals)
		if r := strings.TrimSpace(ch.reason); r != "" {
			note += "\n" + r
		}
		ch.reason = note
	}
	entry, err := e.commitStatus(ctx, tx, m, ch)
	if err != nil {
		return CommittedStatus{}, err
	}
	return CommittedStatus{
		Status:     ch.status,
		Requested:  ch.requested,
		Downgraded: downgraded,
		Motion:     *m,
		Entry:      entry,
		Totals:     totals,
	}, nil
}

func (e *Engine) storeDocument(ctx context.Context, doc *Document) (storedDocument, error) {
	if doc == nil {
		return storedDocument{}, nil
	}
	ref, err := e.documents.Put(ctx, doc.Name, doc.MediaType, doc.Data)
	if err != nil {
		return storedDocument{}, fmt.Errorf("store document: %w", err)
	}
	return storedDocument{ref: ref, name: doc.Name, mediaType: doc.MediaType}, nil
}

func (e *Engine) discardDocument(ctx context.Context, doc storedDocument) {
	if doc.ref == "" {
		return
	}
	if err := e.documents.Delete(ctx, doc.ref); err != nil {
		e.logger.Error("orphaned document not removed",
			"event", "motion_document_discard_failed",
			"document_ref", doc.ref,
			"error", err.Error(),
		)
	}
}

// RequestTransition validates and applies a status change, recording any
// attached votes first. All writes commit together or not at all; callers
// must branch on the returned Status.
func (e *Engine) RequestTransition(ctx context.Context, req TransitionRequest) (CommittedStatus, error) {
	log := e.logger.With("motion_id", req.MotionID, "requested", req.Target)
	log.Debug("transition requested", "event", "motion_transition_started")

	if err := e.validateTransition(ctx, req); err != nil {
		log.Warn("transition rejected", "event", "motion_transition_validation_failed", "error", err.Error())
		return CommittedStatus{}, err
	}
	m, err := e.openMotion(ctx, req.MotionID)
	if err != nil {
		return CommittedStatus{}, err
	}
	session := req.SessionID
	if session == nil {
		session = m.SessionID
	}
	if req.Round != nil {
		if err := e.checkEntries(ctx, session, *req.Round, req.AllowUnresolvedSeats); err != nil {
			log.Warn("transition votes rejected", "event", "motion_transition_votes_rejected", "error", err.Error())
			return CommittedStatus{}, err
		}
	}

	doc, err := e.storeDocument(ctx, req.Document)
	if err != nil {
		return CommittedStatus{}, err
	}

	defer e.locks.Lock(motionLockKey(m.ID))()
	if req.Round != nil {
		defer e.locks.Lock(roundLockKey(m.ID, req.Round.Key))()
	}

	var result CommittedStatus
	err = e.within(ctx, func(tx Tx) error {
		cur, err := tx.LockMotion(ctx, m.ID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("%w: motion %d is %s", ErrTerminalStatus, m.ID, cur.Status)
		}
		if req.Round != nil && req.SessionID == nil && !sameID(cur.SessionID, m.SessionID) {
			return fmt.Errorf("%w: motion %d session changed during validation", ErrConcurrentModification, m.ID)
		}
		if req.Target == models.StatusVotedInCommittee {
			referred, ok, err := referralCommittee(ctx, tx, cur)
			if err != nil {
				return err
			}
			if !ok {
				return fieldErr("committee_id", ErrCommitteeMismatch, "motion %d was never referred to a committee", m.ID)
			}
			if referred != *req.CommitteeID {
				return fieldErr("committee_id", ErrCommitteeMismatch, "committee %d, referred to %d", *req.CommitteeID, referred)
			}
		}

		ch := statusChange{
			requested: req.Target,
			status:    req.Target,
			sessionID: req.SessionID,
			reason:    req.Reason,
			actor:     req.Actor,
			doc:       doc,
		}
		if req.Target == models.StatusReferToCommittee || req.Target == models.StatusVotedInCommittee {
			ch.committeeID = req.CommitteeID
		}
		var totals *tally.Totals
		if req.Round != nil {
			w, err := e.applyRound(ctx, tx, m.ID, *req.Round, req.Replace, nil)
			if err != nil {
				return err
			}
			ch.voteIDs = w.touched
			totals = &w.totals
		}
		result, err = e.commitWithVotes(ctx, tx, &cur, ch, totals)
		return err
	})
	if err != nil {
		e.discardDocument(ctx, doc)
		log.Warn("transition failed", "event", "motion_transition_failed", "error", err.Error())
		return CommittedStatus{}, err
	}

	e.metrics.transitions.WithLabelValues(string(result.Requested), string(result.Status)).Inc()
	if result.Downgraded {
		log.Info("referral downgraded, no majority",
			"event", "motion_referral_downgraded",
			"total_favor", result.Totals.Favor,
			"total_against", result.Totals.Against,
		)
	}
	log.Info("transition committed",
		"event", "motion_transition_committed",
		"committed", result.Status,
		"history_entry_id", result.Entry.ID,
	)
	return result, nil
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CreateMotion stores a new motion in draft together with its first
// ledger entry.
func (e *Engine) CreateMotion(ctx context.Context, req CreateMotionRequest) (models.Motion, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return models.Motion{}, fieldErr("title", ErrInvalidMotion, "title is required")
	}
	if len(title) > 200 {
		return models.Motion{}, fieldErr("title", ErrInvalidMotion, "title exceeds 200 characters")
	}
	motionType := req.Type
	if motionType == "" {
		motionType = models.MotionTypeGeneral
	}
	if !motionType.Valid() {
		return models.Motion{}, fieldErr("type", ErrInvalidMotion, "unknown motion type %q", req.Type)
	}
	if req.SessionID != nil {
		if err := e.checkSession(ctx, req.SessionID, models.StatusDraft); err != nil {
			return models.Motion{}, err
		}
	}
	parties := make([]models.Party, 0, len(req.PartyIDs))
	seen := make(map[uint]bool, len(req.PartyIDs))
	for i, id := range req.PartyIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := e.directory.Party(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUnknownParty) {
				return models.Motion{}, fieldErr(fmt.Sprintf("parties[%d]", i), ErrUnknownParty, "party %d", id)
			}
			return models.Motion{}, fmt.Errorf("load party %d: %w", id, err)
		}
		parties = append(parties, p)
	}

	m := models.Motion{
		Title:       title,
		Body:        req.Body,
		Rationale:   req.Rationale,
		Type:        motionType,
		Status:      models.StatusDraft,
		GroupID:     req.GroupID,
		SessionID:   req.SessionID,
		SubmittedBy: req.Actor.ID,
		Parties:     parties,
	}
	err := e.within(ctx, func(tx Tx) error {
		if err := tx.CreateMotion(ctx, &m); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &models.StatusHistoryEntry{
			MotionID:  m.ID,
			Status:    models.StatusDraft,
			SessionID: m.SessionID,
			ActorID:   req.Actor.ID,
			ActorName: req.Actor.Name,
			Reason:    "Motion created",
			CreatedAt: e.clock.Now(),
		})
	})
	if err != nil {
		return models.Motion{}, err
	}
	e.logger.Info("motion created",
		"event", "motion_created",
		"motion_id", m.ID,
		"motion_type", m.Type,
		"group_id", m.GroupID,
	)
	return m, nil
}
