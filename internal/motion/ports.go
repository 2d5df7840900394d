package motion

import (
	"context"
	"time"

	"council-motions/internal/models"
	"council-motions/internal/tally"
)

// Store is the persistence boundary of the engine. Reads outside Within see
// committed state only.
type Store interface {
	// Within runs fn in one transaction. Any error rolls back every write
	// made through the Tx.
	Within(ctx context.Context, fn func(Tx) error) error

	GetMotion(ctx context.Context, id uint) (models.Motion, error)
	// ListRound returns the records of one round ordered by party name.
	ListRound(ctx context.Context, motionID uint, key tally.Key) ([]models.VoteRecord, error)
	// ListRounds returns the round rows of a motion in creation order.
	ListRounds(ctx context.Context, motionID uint) ([]models.VoteRound, error)
	// ListHistory returns ledger entries oldest first with linked votes.
	ListHistory(ctx context.Context, motionID uint) ([]models.StatusHistoryEntry, error)
}

// Tx is the unit of work handed to Store.Within. Lock methods block
// concurrent writers of the same row until the transaction ends.
type Tx interface {
	LockMotion(ctx context.Context, id uint) (models.Motion, error)
	CreateMotion(ctx context.Context, m *models.Motion) error
	SaveMotion(ctx context.Context, m *models.Motion) error

	// LockRound returns the round row for key, creating it when absent.
	LockRound(ctx context.Context, motionID uint, key tally.Key) (models.VoteRound, error)
	RoundRecords(ctx context.Context, motionID uint, key tally.Key) ([]models.VoteRecord, error)
	SaveVote(ctx context.Context, rec *models.VoteRecord) error
	DeleteVotes(ctx context.Context, ids []uint) error
	// WriteRound stores totals on the round row and on every record of the
	// round, and bumps the round revision.
	WriteRound(ctx context.Context, round *models.VoteRound, totals tally.Totals) error
	DeleteRound(ctx context.Context, round models.VoteRound) error

	AppendHistory(ctx context.Context, entry *models.StatusHistoryEntry) error
	LinkVotes(ctx context.Context, entryID uint, voteIDs []uint) error
	// LastReferral returns the most recent refer_to_committee entry.
	LastReferral(ctx context.Context, motionID uint) (models.StatusHistoryEntry, bool, error)
	// DeleteHistoryEntry removes an entry and clears the link on its votes.
	DeleteHistoryEntry(ctx context.Context, motionID, entryID uint) error
}

// Directory resolves reference entities owned by other subsystems.
type Directory interface {
	Party(ctx context.Context, id uint) (models.Party, error)
	Committee(ctx context.Context, id uint) (models.Committee, error)
	Session(ctx context.Context, id uint) (models.Session, error)
}

// SeatAllocations is the read-only seat distribution source.
type SeatAllocations interface {
	SeatCap(ctx context.Context, partyID, termID uint) (uint, bool, error)
	ResolveEffectiveTerm(ctx context.Context, sessionID *uint, at time.Time) (uint, bool, error)
}

// DocumentStore keeps answer documents and hands out stable references.
type DocumentStore interface {
	Validate(mediaType string, size int) error
	Put(ctx context.Context, name, mediaType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
