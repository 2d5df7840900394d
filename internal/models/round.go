package models

import "time"

// VoteRound holds the aggregate of one (motion, vote_type, vote_name) round.
// The row doubles as the lock target for serializing aggregation writes.
type VoteRound struct {
	ID           uint     `gorm:"primaryKey"`
	MotionID     uint     `gorm:"not null;uniqueIndex:ux_round_key"`
	VoteType     VoteType `gorm:"size:32;not null;uniqueIndex:ux_round_key"`
	VoteName     string   `gorm:"size:200;not null;uniqueIndex:ux_round_key"`
	TotalFavor   uint     `gorm:"not null"`
	TotalAgainst uint     `gorm:"not null"`
	Outcome      Outcome  `gorm:"size:32"`
	Revision     uint64   `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
