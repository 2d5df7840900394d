package motion_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/seats"
	"council-motions/internal/tally"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transition(t *testing.T, f *fixture, req motion.TransitionRequest) motion.CommittedStatus {
	t.Helper()
	if req.Actor.ID == 0 {
		req.Actor = clerk
	}
	res, err := f.engine.RequestTransition(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestCreateMotionStartsInDraft(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)

	assert.Equal(t, models.StatusDraft, m.Status)
	assert.Len(t, m.Parties, 2)

	history, err := f.engine.History(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusDraft, history[0].Status)
	assert.Equal(t, "clerk", history[0].ActorName)

	_, err = f.engine.CreateMotion(context.Background(), motion.CreateMotionRequest{Title: "  "})
	require.ErrorIs(t, err, motion.ErrInvalidMotion)
	_, err = f.engine.CreateMotion(context.Background(), motion.CreateMotionRequest{Title: "x", Type: "decree"})
	require.ErrorIs(t, err, motion.ErrInvalidMotion)
	_, err = f.engine.CreateMotion(context.Background(), motion.CreateMotionRequest{Title: "x", SessionID: ptr(uint(42))})
	require.ErrorIs(t, err, motion.ErrUnresolvedSession)
}

func TestFinalVoteScenario(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	ctx := context.Background()

	upsert(t, f, m.ID, finalVote, partyAlliance, 8, 2)
	upsert(t, f, m.ID, finalVote, partyBloc, 6, 2)
	for _, rec := range requireConsistent(t, f, m.ID, finalVote) {
		assert.Equal(t, uint(14), rec.TotalFavor)
		assert.Equal(t, uint(4), rec.TotalAgainst)
		assert.Equal(t, models.OutcomeAdopted, rec.Outcome)
	}

	res := transition(t, f, motion.TransitionRequest{
		MotionID: m.ID,
		Target:   models.StatusApproved,
		Reason:   "Adopted in plenary",
		Round:    &motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, 8, 2), vote(partyBloc, 6, 2))},
	})
	assert.Equal(t, models.StatusApproved, res.Status)
	assert.Equal(t, models.StatusApproved, res.Requested)
	assert.False(t, res.Downgraded)
	require.NotNil(t, res.Totals)
	assert.Equal(t, tally.Totals{Favor: 14, Against: 4, Outcome: models.OutcomeAdopted}, *res.Totals)

	current, err := f.engine.Motion(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, current.Status)

	history, err := f.engine.History(ctx, m.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, models.StatusApproved, last.Status)
	assert.Equal(t, res.Entry.ID, last.ID)
	require.Len(t, last.Votes, 2)
	for _, v := range last.Votes {
		assert.Equal(t, uint(14), v.TotalFavor)
		assert.NotEmpty(t, v.Party.Name)
	}
}

func TestReferralWithoutMajorityIsDowngraded(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)

	res := transition(t, f, motion.TransitionRequest{
		MotionID:    m.ID,
		Target:      models.StatusReferToCommittee,
		CommitteeID: ptr(committeeFinance),
		Reason:      "Needs expert review",
		Round:       &motion.RoundEntries{Key: referral, Entries: entries(vote(partyAlliance, 4, 6))},
	})
	assert.Equal(t, models.StatusReferNoMajority, res.Status)
	assert.Equal(t, models.StatusReferToCommittee, res.Requested)
	assert.True(t, res.Downgraded)
	assert.Nil(t, res.Motion.CommitteeID)
	assert.Nil(t, res.Entry.CommitteeID)
	assert.True(t, strings.HasPrefix(res.Entry.Reason, "No majority for referral to committee: 4 in favor, 6 against."))
	assert.Contains(t, res.Entry.Reason, "Needs expert review")

	current, err := f.engine.Motion(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReferNoMajority, current.Status)
	assert.Nil(t, current.CommitteeID)

	history, err := f.engine.History(context.Background(), m.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	require.Len(t, last.Votes, 1, "votes stay linked to the downgraded entry")
	assert.Equal(t, models.OutcomeNotReferred, last.Votes[0].Outcome)

	// a tied referral has no majority either
	m2 := f.createMotion(t)
	res = transition(t, f, motion.TransitionRequest{
		MotionID:    m2.ID,
		Target:      models.StatusReferToCommittee,
		CommitteeID: ptr(committeeFinance),
		Round:       &motion.RoundEntries{Key: referral, Entries: entries(vote(partyAlliance, 5, 5))},
	})
	assert.Equal(t, models.StatusReferNoMajority, res.Status)
	assert.Equal(t, noteFor(5, 5), res.Entry.Reason)
}

func noteFor(favor, against uint) string {
	return motion.NoMajorityNote(tally.Totals{Favor: favor, Against: against})
}

func TestReferralWithMajoritySetsCommittee(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)

	res := transition(t, f, motion.TransitionRequest{
		MotionID:    m.ID,
		Target:      models.StatusReferToCommittee,
		CommitteeID: ptr(committeeFinance),
		Round:       &motion.RoundEntries{Key: referral, Entries: entries(vote(partyAlliance, 8, 2))},
	})
	assert.Equal(t, models.StatusReferToCommittee, res.Status)
	assert.False(t, res.Downgraded)
	require.NotNil(t, res.Motion.CommitteeID)
	assert.Equal(t, committeeFinance, *res.Motion.CommitteeID)
	require.NotNil(t, res.Entry.CommitteeID)
	assert.Equal(t, committeeFinance, *res.Entry.CommitteeID)
}

func TestCommitteeContinuity(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	ctx := context.Background()

	_, err := f.engine.RequestTransition(ctx, motion.TransitionRequest{
		MotionID: m.ID, Target: models.StatusVotedInCommittee, CommitteeID: ptr(committeeFinance), Actor: clerk,
	})
	require.ErrorIs(t, err, motion.ErrCommitteeMismatch, "never referred")

	transition(t, f, motion.TransitionRequest{
		MotionID:    m.ID,
		Target:      models.StatusReferToCommittee,
		CommitteeID: ptr(committeeFinance),
		Round:       &motion.RoundEntries{Key: referral, Entries: entries(vote(partyAlliance, 8, 2))},
	})

	_, err = f.engine.RequestTransition(ctx, motion.TransitionRequest{
		MotionID:    m.ID,
		Target:      models.StatusVotedInCommittee,
		CommitteeID: ptr(committeeSocial),
		Round:       &motion.RoundEntries{Key: tally.Key{Type: models.VoteTypeRegular, Name: "Committee"}, Entries: entries(vote(partyBloc, 3, 1))},
		Actor:       clerk,
	})
	require.ErrorIs(t, err, motion.ErrCommitteeMismatch)
	records, err := f.engine.ListRound(ctx, m.ID, tally.Key{Type: models.VoteTypeRegular, Name: "Committee"})
	require.NoError(t, err)
	assert.Empty(t, records, "votes of a rejected transition are rolled back")

	res := transition(t, f, motion.TransitionRequest{
		MotionID: m.ID, Target: models.StatusVotedInCommittee, CommitteeID: ptr(committeeFinance),
	})
	assert.Equal(t, models.StatusVotedInCommittee, res.Status)

	// the referral is found in the ledger once the motion moved on
	res = transition(t, f, motion.TransitionRequest{
		MotionID: m.ID, Target: models.StatusVotedInCommittee, CommitteeID: ptr(committeeFinance),
	})
	assert.Equal(t, models.StatusVotedInCommittee, res.Status)
}

func TestFailedValidationChangesNothing(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	ctx := context.Background()
	before, err := f.engine.Motion(ctx, m.ID)
	require.NoError(t, err)
	entriesBefore := f.historyLen(t, m.ID)

	tests := []struct {
		name string
		req  motion.TransitionRequest
		want error
	}{
		{"tabled without session", motion.TransitionRequest{Target: models.StatusTabled}, motion.ErrUnresolvedSession},
		{"tabled unknown session", motion.TransitionRequest{Target: models.StatusTabled, SessionID: ptr(uint(77))}, motion.ErrUnresolvedSession},
		{"referral without committee", motion.TransitionRequest{Target: models.StatusReferToCommittee}, motion.ErrUnresolvedCommittee},
		{"referral to inactive committee", motion.TransitionRequest{Target: models.StatusReferToCommittee, CommitteeID: ptr(uint(3))}, motion.ErrUnresolvedCommittee},
		{"answered without document", motion.TransitionRequest{Target: models.StatusAnswered}, motion.ErrAnswerDocumentRequired},
		{"answered with image", motion.TransitionRequest{Target: models.StatusAnswered, Document: &motion.Document{Name: "a.png", MediaType: "image/png", Data: []byte("png")}}, motion.ErrDocumentRejected},
		{"answered with oversized pdf", motion.TransitionRequest{Target: models.StatusAnswered, Document: &motion.Document{Name: "a.pdf", MediaType: "application/pdf", Data: make([]byte, 2048)}}, motion.ErrDocumentRejected},
		{"unknown status", motion.TransitionRequest{Target: "archived"}, motion.ErrInvalidStatus},
		{"derived status", motion.TransitionRequest{Target: models.StatusReferNoMajority}, motion.ErrInvalidStatus},
		{"votes on withdrawal", motion.TransitionRequest{Target: models.StatusWithdrawn, Round: &motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, 1, 0))}}, motion.ErrVotesNotAccepted},
		{"over cap", motion.TransitionRequest{Target: models.StatusApproved, Round: &motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, 8, 2), vote(partyBloc, 9, 0))}}, motion.ErrSeatCapExceeded},
		{"over cap with wrapping sum", motion.TransitionRequest{Target: models.StatusApproved, Round: &motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, math.MaxUint/2+1, math.MaxUint/2+3))}}, motion.ErrSeatCapExceeded},
		{"referral with regular round", motion.TransitionRequest{Target: models.StatusReferToCommittee, CommitteeID: ptr(committeeFinance), Round: &motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, 8, 2))}}, motion.ErrInvalidVoteType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.MotionID = m.ID
			tt.req.Actor = clerk
			_, err := f.engine.RequestTransition(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, motion.KindValidation, motion.KindOf(err))
		})
	}

	after, err := f.engine.Motion(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CommitteeID, after.CommitteeID)
	assert.Equal(t, before.SessionID, after.SessionID)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, entriesBefore, f.historyLen(t, m.ID))
	rounds, err := f.engine.Rounds(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestTabledSetsSession(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)

	res := transition(t, f, motion.TransitionRequest{MotionID: m.ID, Target: models.StatusTabled, SessionID: ptr(sessionSpring)})
	assert.Equal(t, models.StatusTabled, res.Status)
	require.NotNil(t, res.Motion.SessionID)
	assert.Equal(t, sessionSpring, *res.Motion.SessionID)

	// the session's own term now drives seat caps
	rec := upsert(t, f, m.ID, finalVote, partyCentre, 5, 0)
	assert.Equal(t, uint(5), rec.TotalFavor)
}

func TestAnsweredStoresDocument(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)

	res := transition(t, f, motion.TransitionRequest{
		MotionID: m.ID,
		Target:   models.StatusAnswered,
		Document: &motion.Document{Name: "answer.pdf", MediaType: "application/pdf", Data: []byte("%PDF-1.7 answer")},
	})
	assert.Equal(t, models.StatusAnswered, res.Status)
	require.NotEmpty(t, res.Entry.DocumentRef)
	assert.Equal(t, "answer.pdf", res.Entry.DocumentName)

	meta, data, err := f.docs.Get(context.Background(), res.Entry.DocumentRef)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", meta.MediaType)
	assert.Equal(t, "%PDF-1.7 answer", string(data))
}

func TestDeletedIsTerminal(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	ctx := context.Background()
	upsert(t, f, m.ID, finalVote, partyAlliance, 8, 2)
	transition(t, f, motion.TransitionRequest{MotionID: m.ID, Target: models.StatusDeleted})

	// rounds of a deleted motion are frozen
	err := f.engine.DeleteRound(ctx, m.ID, finalVote)
	require.ErrorIs(t, err, motion.ErrTerminalStatus)
	_, err = f.engine.DeleteVote(ctx, m.ID, finalVote, partyAlliance)
	require.ErrorIs(t, err, motion.ErrTerminalStatus)
	records, err := f.engine.ListRound(ctx, m.ID, finalVote)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = f.engine.RequestTransition(ctx, motion.TransitionRequest{MotionID: m.ID, Target: models.StatusDraft, Actor: clerk})
	require.ErrorIs(t, err, motion.ErrTerminalStatus)
	_, err = f.engine.UpsertVote(context.Background(), motion.UpsertVoteRequest{MotionID: m.ID, Key: finalVote, PartyID: partyAlliance, Approve: 1})
	require.ErrorIs(t, err, motion.ErrTerminalStatus)

	_, err = f.engine.RequestTransition(context.Background(), motion.TransitionRequest{MotionID: 999, Target: models.StatusSubmitted})
	require.ErrorIs(t, err, motion.ErrMotionNotFound)
	assert.Equal(t, motion.KindNotFound, motion.KindOf(err))
}

func TestPermissiveReopening(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	for _, s := range []models.Status{models.StatusSubmitted, models.StatusWithdrawn, models.StatusDraft, models.StatusSubmitted, models.StatusNotAdmitted} {
		res := transition(t, f, motion.TransitionRequest{MotionID: m.ID, Target: s})
		assert.Equal(t, s, res.Status)
	}
	history, err := f.engine.History(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, models.StatusNotAdmitted, history[len(history)-1].Status)
}

func TestRecordRoundAppliesOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		key       tally.Key
		votes     []motion.VoteEntry
		committee *uint
		want      models.Status
	}{
		{"adopted", finalVote, entries(vote(partyAlliance, 8, 2)), nil, models.StatusApproved},
		{"rejected", finalVote, entries(vote(partyAlliance, 2, 8)), nil, models.StatusRejected},
		{"referred", referral, entries(vote(partyAlliance, 8, 2)), ptr(committeeSocial), models.StatusReferToCommittee},
		{"not referred", referral, entries(vote(partyAlliance, 2, 8)), ptr(committeeSocial), models.StatusReferNoMajority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := f.createMotion(t)
			res, err := f.engine.RecordRound(ctx, motion.RecordRoundRequest{
				MotionID:     m.ID,
				Round:        motion.RoundEntries{Key: tt.key, Entries: tt.votes},
				ApplyOutcome: true,
				CommitteeID:  tt.committee,
				Actor:        clerk,
			})
			require.NoError(t, err)
			require.NotNil(t, res.Committed)
			assert.Equal(t, tt.want, res.Committed.Status)
			current, err := f.engine.Motion(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, current.Status)
		})
	}

	t.Run("tie leaves status", func(t *testing.T) {
		m := f.createMotion(t)
		res, err := f.engine.RecordRound(ctx, motion.RecordRoundRequest{
			MotionID:     m.ID,
			Round:        motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, 5, 5))},
			ApplyOutcome: true,
		})
		require.NoError(t, err)
		assert.Nil(t, res.Committed)
		assert.Equal(t, models.OutcomeTie, res.Totals.Outcome)
		assert.Equal(t, 1, f.historyLen(t, m.ID))
	})

	t.Run("referral round needs committee", func(t *testing.T) {
		m := f.createMotion(t)
		_, err := f.engine.RecordRound(ctx, motion.RecordRoundRequest{
			MotionID:     m.ID,
			Round:        motion.RoundEntries{Key: referral, Entries: entries(vote(partyAlliance, 8, 2))},
			ApplyOutcome: true,
		})
		require.ErrorIs(t, err, motion.ErrUnresolvedCommittee)
	})
}

func TestNotesAndHistoryDeletion(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	ctx := context.Background()

	res := transition(t, f, motion.TransitionRequest{
		MotionID: m.ID,
		Target:   models.StatusApproved,
		Round:    &motion.RoundEntries{Key: finalVote, Entries: entries(vote(partyAlliance, 8, 2))},
	})

	note, err := f.engine.AppendNote(ctx, motion.NoteRequest{MotionID: m.ID, Reason: "Minutes corrected", Actor: clerk})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, note.Status)
	_, err = f.engine.AppendNote(ctx, motion.NoteRequest{MotionID: m.ID, Actor: clerk})
	require.ErrorIs(t, err, motion.ErrInvalidMotion)

	err = f.engine.DeleteHistoryEntry(ctx, m.ID, res.Entry.ID, clerk)
	require.ErrorIs(t, err, motion.ErrForbidden)
	assert.Equal(t, motion.KindForbidden, motion.KindOf(err))

	require.NoError(t, f.engine.DeleteHistoryEntry(ctx, m.ID, res.Entry.ID, chair))
	require.ErrorIs(t, f.engine.DeleteHistoryEntry(ctx, m.ID, res.Entry.ID, chair), motion.ErrHistoryEntryNotFound)

	// status is not recomputed from the ledger
	current, err := f.engine.Motion(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, current.Status)

	records, err := f.engine.ListRound(ctx, m.ID, finalVote)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].HistoryEntryID)
	assert.Equal(t, 2, f.historyLen(t, m.ID))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	m := f.createMotion(t)
	transition(t, f, motion.TransitionRequest{
		MotionID:    m.ID,
		Target:      models.StatusReferToCommittee,
		CommitteeID: ptr(committeeFinance),
		Round:       &motion.RoundEntries{Key: referral, Entries: entries(vote(partyAlliance, 4, 6))},
	})
	_, err := f.engine.UpsertVote(context.Background(), motion.UpsertVoteRequest{
		MotionID: m.ID, Key: finalVote, PartyID: partyCentre, Approve: 6,
	})
	require.ErrorIs(t, err, motion.ErrSeatCapExceeded)

	expected := `
# HELP motions_transitions_total Committed status transitions by requested and committed status
# TYPE motions_transitions_total counter
motions_transitions_total{committed="refer_no_majority",requested="refer_to_committee"} 1
# HELP motions_vote_rejections_total Vote entries rejected before any write, by reason
# TYPE motions_vote_rejections_total counter
motions_vote_rejections_total{reason="seat_cap"} 1
# HELP motions_round_aggregations_total Round aggregations written, by vote type
# TYPE motions_round_aggregations_total counter
motions_round_aggregations_total{vote_type="refer_to_committee"} 1
`
	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(expected),
		"motions_transitions_total", "motions_vote_rejections_total", "motions_round_aggregations_total"))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := motion.New(motion.Config{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = motion.New(motion.Config{Store: f.repo, Directory: f.repo, Seats: seats.NewTable(f.db), SeatPolicy: "sometimes"})
	require.Error(t, err)
}
