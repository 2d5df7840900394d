package motion_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"council-motions/internal/config"
	"council-motions/internal/db"
	"council-motions/internal/documents"
	"council-motions/internal/logger"
	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/seats"
	"council-motions/internal/store"
	"council-motions/internal/tally"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	partyAlliance uint = 1 // 10 seats
	partyBloc     uint = 2 // 8 seats
	partyCentre   uint = 3 // 5 seats

	committeeFinance uint = 1
	committeeSocial  uint = 2

	sessionSpring uint = 1
)

var (
	finalVote = tally.Key{Type: models.VoteTypeRegular, Name: "Final Vote"}
	referral  = tally.Key{Type: models.VoteTypeReferToCommittee}
	clerk     = models.Actor{ID: 7, Name: "clerk"}
	chair     = models.Actor{ID: 1, Name: "chair", Privileged: true}
)

// stepClock advances one second per reading so ledger order is stable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	engine *motion.Engine
	repo   *store.Repository
	db     *gorm.DB
	docs   *documents.Store
	reg    *prometheus.Registry
	clock  *stepClock
}

func ptr[T any](v T) *T { return &v }

var fixtureSeq atomic.Int64

func newFixture(t *testing.T, mutate ...func(*motion.Config)) *fixture {
	t.Helper()
	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), fixtureSeq.Add(1))
	gdb, err := db.OpenDialect(config.DatabaseSchemeSqlite, "file:"+name+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := logger.Discard()
	repo := store.NewRepository(gdb, log)
	require.NoError(t, repo.ImportReference(context.Background(), store.ReferenceData{
		Parties: []store.PartyRef{
			{ID: partyAlliance, Name: "Alliance"},
			{ID: partyBloc, Name: "Bloc"},
			{ID: partyCentre, Name: "Centre"},
		},
		Committees: []store.CommitteeRef{
			{ID: committeeFinance, Name: "Finance"},
			{ID: committeeSocial, Name: "Social Affairs"},
			{ID: 3, Name: "Dissolved", Inactive: true},
		},
		Terms: []store.TermRef{{
			ID:    1,
			Name:  "2022-2025",
			Start: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			Seats: map[uint]uint{partyAlliance: 10, partyBloc: 8, partyCentre: 5},
		}},
		Sessions: []store.SessionRef{{
			ID:          sessionSpring,
			Title:       "Spring plenary",
			TermID:      ptr(uint(1)),
			ScheduledAt: time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC),
		}},
	}))

	docs, err := documents.Open(documents.Options{MaxBytes: 1024})
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	reg := prometheus.NewRegistry()
	cfg := motion.Config{
		Store:        repo,
		Directory:    repo,
		Seats:        seats.NewTable(gdb),
		Documents:    docs,
		Clock:        clock,
		Logger:       log,
		PromRegistry: reg,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	engine, err := motion.New(cfg)
	require.NoError(t, err)
	return &fixture{engine: engine, repo: repo, db: gdb, docs: docs, reg: reg, clock: clock}
}

func (f *fixture) createMotion(t *testing.T) models.Motion {
	t.Helper()
	m, err := f.engine.CreateMotion(context.Background(), motion.CreateMotionRequest{
		Title:     "Street lighting on Main Road",
		Body:      "The council resolves to replace the street lights.",
		Rationale: "Energy savings",
		Type:      models.MotionTypeResolution,
		GroupID:   4,
		PartyIDs:  []uint{partyAlliance, partyBloc},
		Actor:     clerk,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) historyLen(t *testing.T, motionID uint) int {
	t.Helper()
	entries, err := f.engine.History(context.Background(), motionID)
	require.NoError(t, err)
	return len(entries)
}

func entries(votes ...motion.VoteEntry) []motion.VoteEntry { return votes }

func vote(party, approve, reject uint) motion.VoteEntry {
	return motion.VoteEntry{PartyID: party, Approve: approve, Reject: reject}
}
