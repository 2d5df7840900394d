// Package models defines the persisted rows and enums of the motion engine.
package models

// Status is the lifecycle state of a motion.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusTabled           Status = "tabled"
	StatusReferToCommittee Status = "refer_to_committee"
	StatusReferNoMajority  Status = "refer_no_majority"
	StatusVotedInCommittee Status = "voted_in_committee"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusWithdrawn        Status = "withdrawn"
	StatusNotAdmitted      Status = "not_admitted"
	StatusAnswered         Status = "answered"
	StatusDeleted          Status = "deleted"
)

// Statuses lists every defined status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusTabled,
	StatusReferToCommittee,
	StatusReferNoMajority,
	StatusVotedInCommittee,
	StatusApproved,
	StatusRejected,
	StatusWithdrawn,
	StatusNotAdmitted,
	StatusAnswered,
	StatusDeleted,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition may follow s.
func (s Status) Terminal() bool {
	return s == StatusDeleted
}

// AcceptsVotes reports whether a transition to s may carry a batch of votes.
func (s Status) AcceptsVotes() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusReferToCommittee, StatusVotedInCommittee:
		return true
	default:
		return false
	}
}

// VoteType distinguishes ordinary votes from committee-referral votes.
type VoteType string

const (
	VoteTypeRegular          VoteType = "regular"
	VoteTypeReferToCommittee VoteType = "refer_to_committee"
)

func (t VoteType) Valid() bool {
	return t == VoteTypeRegular || t == VoteTypeReferToCommittee
}

// Outcome is the derived result of a vote round.
type Outcome string

const (
	OutcomeAdopted     Outcome = "adopted"
	OutcomeRejected    Outcome = "rejected"
	OutcomeTie         Outcome = "tie"
	OutcomeReferred    Outcome = "referred"
	OutcomeNotReferred Outcome = "not_referred"
)

// MotionType classifies a motion.
type MotionType string

const (
	MotionTypeResolution MotionType = "resolution"
	MotionTypeGeneral    MotionType = "general"
)

func (t MotionType) Valid() bool {
	return t == MotionTypeResolution || t == MotionTypeGeneral
}
