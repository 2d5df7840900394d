package models

import "time"

// Motion is a formal proposal moving through the lifecycle. Status is only
// mutated by lifecycle transitions; rows are never removed.
type Motion struct {
	ID          uint       `gorm:"primaryKey"`
	Title       string     `gorm:"size:200;not null"`
	Body        string     `gorm:"type:text"`
	Rationale   string     `gorm:"type:text"`
	Type        MotionType `gorm:"size:20;not null"`
	Status      Status     `gorm:"size:32;not null;index"`
	GroupID     uint       `gorm:"index"`
	SessionID   *uint      `gorm:"index"`
	CommitteeID *uint      `gorm:"index"`
	SubmittedBy uint
	Parties     []Party `gorm:"many2many:motion_parties"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
