package motion

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolvedCommittee    = errors.New("committee is required and must exist")
	ErrUnresolvedSession      = errors.New("session is required and must exist")
	ErrAnswerDocumentRequired = errors.New("answer document is required")
	ErrDocumentRejected       = errors.New("document rejected")
	ErrCommitteeMismatch      = errors.New("committee does not match the referral committee")
	ErrSeatCapExceeded        = errors.New("votes exceed the party seat allocation")
	ErrEmptyVote              = errors.New("vote entry must carry at least one vote")
	ErrVoteCountOutOfRange    = errors.New("vote count out of range")
	ErrDuplicateParty         = errors.New("party appears more than once in the round")
	ErrUnknownParty           = errors.New("party not found")
	ErrInvalidMotion          = errors.New("invalid motion input")
	ErrInvalidStatus          = errors.New("invalid target status")
	ErrInvalidVoteType        = errors.New("invalid vote type")
	ErrTerminalStatus         = errors.New("motion is in a terminal status")
	ErrVotesNotAccepted       = errors.New("target status does not accept votes")

	ErrUnknownTermOrAllocation = errors.New("no term or seat allocation could be resolved")
	ErrRoundNotFound           = errors.New("vote round not found")

	ErrMotionNotFound       = errors.New("motion not found")
	ErrVoteNotFound         = errors.New("vote not found")
	ErrHistoryEntryNotFound = errors.New("history entry not found")

	ErrConcurrentModification = errors.New("concurrent modification, reload and retry")
	ErrForbidden              = errors.New("actor is not allowed to perform this operation")
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindResolution
	KindNotFound
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResolution:
		return "resolution"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrConcurrentModification, KindConflict},
	{ErrForbidden, KindForbidden},
	{ErrMotionNotFound, KindNotFound},
	{ErrVoteNotFound, KindNotFound},
	{ErrHistoryEntryNotFound, KindNotFound},
	{ErrUnknownTermOrAllocation, KindResolution},
	{ErrRoundNotFound, KindResolution},
	{ErrUnresolvedCommittee, KindValidation},
	{ErrUnresolvedSession, KindValidation},
	{ErrAnswerDocumentRequired, KindValidation},
	{ErrDocumentRejected, KindValidation},
	{ErrCommitteeMismatch, KindValidation},
	{ErrSeatCapExceeded, KindValidation},
	{ErrEmptyVote, KindValidation},
	{ErrVoteCountOutOfRange, KindValidation},
	{ErrDuplicateParty, KindValidation},
	{ErrUnknownParty, KindValidation},
	{ErrInvalidMotion, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrInvalidVoteType, KindValidation},
	{ErrTerminalStatus, KindValidation},
	{ErrVotesNotAccepted, KindValidation},
}

// KindOf classifies err. Unrecognized errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// FieldError attaches the offending request field to a validation error.
type FieldError struct {
	Field  string
	Detail string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field string, err error, format string, args ...any) error {
	return &FieldError{Field: field, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// SeatCapError reports a party casting more votes than it holds seats.
type SeatCapError struct {
	PartyID   uint
	PartyName string
	TermID    uint
	Cap       uint
	Cast      uint
}

func (e *SeatCapError) Error() string {
	return fmt.Sprintf("party %q cast %d votes but holds %d seats in term %d", e.PartyName, e.Cast, e.Cap, e.TermID)
}

func (e *SeatCapError) Unwrap() error { return ErrSeatCapExceeded }
