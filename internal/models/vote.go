package models

import (
	"fmt"
	"time"
)

// VoteRecord stores one party's votes in a round. TotalFavor, TotalAgainst
// and Outcome are shared by every record of the round.
type VoteRecord struct {
	ID             uint      `gorm:"primaryKey"`
	MotionID       uint      `gorm:"not null;uniqueIndex:ux_vote_party_round;index"`
	PartyID        uint      `gorm:"not null;uniqueIndex:ux_vote_party_round"`
	VoteType       VoteType  `gorm:"size:32;not null;uniqueIndex:ux_vote_party_round"`
	VoteName       string    `gorm:"size:200;not null;uniqueIndex:ux_vote_party_round"`
	HistoryEntryID *uint     `gorm:"index"`
	ApproveCount   uint      `gorm:"not null"`
	RejectCount    uint      `gorm:"not null"`
	Notes          string    `gorm:"type:text"`
	TotalFavor     uint      `gorm:"not null"`
	TotalAgainst   uint      `gorm:"not null"`
	Outcome        Outcome   `gorm:"size:32"`
	Party          Party     `gorm:"foreignKey:PartyID"`
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time
}

// TotalCast is the number of votes the party cast in this record.
func (v VoteRecord) TotalCast() uint {
	return SaturatingAdd(v.ApproveCount, v.RejectCount)
}

// SaturatingAdd returns a+b, or the largest uint when the sum would wrap.
func SaturatingAdd(a, b uint) uint {
	if s := a + b; s >= a {
		return s
	}
	return ^uint(0)
}

func (v VoteRecord) Summary() string {
	return fmt.Sprintf("Approve: %d, Reject: %d, Total: %d", v.ApproveCount, v.RejectCount, v.TotalCast())
}
