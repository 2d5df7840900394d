package models

import "time"

// StatusHistoryEntry is one append-only ledger entry for a motion.
type StatusHistoryEntry struct {
	ID           uint   `gorm:"primaryKey"`
	MotionID     uint   `gorm:"not null;index"`
	Status       Status `gorm:"size:32;not null"`
	CommitteeID  *uint
	SessionID    *uint
	ActorID      uint
	ActorName    string       `gorm:"size:150"`
	Reason       string       `gorm:"type:text"`
	DocumentRef  string       `gorm:"size:64"`
	DocumentName string       `gorm:"size:255"`
	DocumentType string       `gorm:"size:100"`
	Votes        []VoteRecord `gorm:"foreignKey:HistoryEntryID"`
	CreatedAt    time.Time    `gorm:"index"`
}

// Actor is the user performing an operation. It is supplied by the caller
// and not persisted beyond the ledger columns.
type Actor struct {
	ID         uint
	Name       string
	Privileged bool
}
