package models

import "time"

// Reference rows below are owned by the surrounding administration
// subsystems; the engine only reads them.

type Party struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"size:128;not null;index"`
	IsActive bool   `gorm:"not null"`
}

type Committee struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"size:200;not null"`
	IsActive bool   `gorm:"not null"`
}

type Session struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"size:200;not null"`
	TermID      *uint  `gorm:"index"`
	ScheduledAt time.Time
}

// Term is a legislative period; StartDate and EndDate are inclusive days.
type Term struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;not null"`
	StartDate time.Time `gorm:"not null;index"`
	EndDate   time.Time `gorm:"not null;index"`
}

// SeatAllocation is the number of seats a party holds in a term.
type SeatAllocation struct {
	ID      uint `gorm:"primaryKey"`
	TermID  uint `gorm:"not null;uniqueIndex:ux_term_party"`
	PartyID uint `gorm:"not null;uniqueIndex:ux_term_party"`
	Seats   uint `gorm:"not null"`
}

// MigrateModels lists every row type created by AutoMigrate.
var MigrateModels = []any{
	&Party{},
	&Committee{},
	&Term{},
	&Session{},
	&SeatAllocation{},
	&Motion{},
	&VoteRound{},
	&StatusHistoryEntry{},
	&VoteRecord{},
}
