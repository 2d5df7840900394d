package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"council-motions/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferenceData is a snapshot of the reference rows owned by the
// administration subsystems, as exported to YAML.
type ReferenceData struct {
	Parties    []PartyRef     `yaml:"parties"`
	Committees []CommitteeRef `yaml:"committees"`
	Terms      []TermRef      `yaml:"terms"`
	Sessions   []SessionRef   `yaml:"sessions"`
}

type PartyRef struct {
	ID       uint   `yaml:"id"`
	Name     string `yaml:"name"`
	Inactive bool   `yaml:"inactive"`
}

type CommitteeRef struct {
	ID       uint   `yaml:"id"`
	Name     string `yaml:"name"`
	Inactive bool   `yaml:"inactive"`
}

type TermRef struct {
	ID    uint      `yaml:"id"`
	Name  string    `yaml:"name"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
	// Seats maps party id to the seats it holds in the term.
	Seats map[uint]uint `yaml:"seats"`
}

type SessionRef struct {
	ID          uint      `yaml:"id"`
	Title       string    `yaml:"title"`
	TermID      *uint     `yaml:"term"`
	ScheduledAt time.Time `yaml:"scheduled_at"`
}

func LoadReference(r io.Reader) (ReferenceData, error) {
	var data ReferenceData
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil && err != io.EOF {
		return ReferenceData{}, fmt.Errorf("decode reference data: %w", err)
	}
	return data, nil
}

// ImportReference upserts reference rows by id in one transaction.
func (r *Repository) ImportReference(ctx context.Context, data ReferenceData) error {
	upsert := clause.OnConflict{UpdateAll: true}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range data.Parties {
			row := models.Party{ID: p.ID, Name: p.Name, IsActive: !p.Inactive}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("party %d: %w", p.ID, err)
			}
		}
		for _, c := range data.Committees {
			row := models.Committee{ID: c.ID, Name: c.Name, IsActive: !c.Inactive}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("committee %d: %w", c.ID, err)
			}
		}
		for _, t := range data.Terms {
			row := models.Term{ID: t.ID, Name: t.Name, StartDate: t.Start.UTC(), EndDate: t.End.UTC()}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("term %d: %w", t.ID, err)
			}
			for partyID, seats := range t.Seats {
				alloc := models.SeatAllocation{TermID: t.ID, PartyID: partyID, Seats: seats}
				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "term_id"}, {Name: "party_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"seats"}),
				}).Create(&alloc).Error
				if err != nil {
					return fmt.Errorf("seats of party %d in term %d: %w", partyID, t.ID, err)
				}
			}
		}
		for _, s := range data.Sessions {
			row := models.Session{ID: s.ID, Title: s.Title, TermID: s.TermID, ScheduledAt: s.ScheduledAt.UTC()}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("session %d: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return r.logError("motions_repo_import_reference_failed", err)
	}
	r.logger.Info("reference data imported",
		"event", "motions_repo_reference_imported",
		"module", "store",
		"layer", "adapter",
		"parties", len(data.Parties),
		"committees", len(data.Committees),
		"terms", len(data.Terms),
		"sessions", len(data.Sessions),
	)
	return nil
}
