// Package collector polls a motion and feeds board snapshots to the TUI.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"council-motions/internal/logger"
	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/tui"
)

const (
	// TUIChannelBufferSize bounds the snapshots waiting for the TUI.
	TUIChannelBufferSize = 16
	// TUICloseDelay lets the TUI drain after the update channel closes.
	TUICloseDelay = 200 * time.Millisecond
)

// Source loads a motion's board.
type Source interface {
	Snapshot(ctx context.Context, id uint) (motion.Board, error)
}

// Names resolves committee and session display names. Optional.
type Names interface {
	Committee(ctx context.Context, id uint) (models.Committee, error)
	Session(ctx context.Context, id uint) (models.Session, error)
}

type Collector struct {
	src      Source
	names    Names
	motionID uint
	interval time.Duration
	out      chan<- any
	logger   *slog.Logger
	now      func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func NewCollector(src Source, names Names, motionID uint, interval time.Duration, out chan<- any, log *slog.Logger) (*Collector, error) {
	if src == nil {
		return nil, errors.New("collector: source is required")
	}
	if out == nil {
		return nil, errors.New("collector: update channel is required")
	}
	if interval <= 0 {
		return nil, errors.New("collector: interval must be positive")
	}
	return &Collector{
		src:      src,
		names:    names,
		motionID: motionID,
		interval: interval,
		out:      out,
		logger:   logger.ForModule(log, "collector", "poller"),
		now:      time.Now,
		done:     make(chan struct{}),
	}, nil
}

// Run refreshes the board until ctx is cancelled or Close is called.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil // Context cancelled, normal shutdown
		case <-c.done:
			return nil
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Collector) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Collector) poll(ctx context.Context) {
	board, err := c.src.Snapshot(ctx, c.motionID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("board refresh failed", "event", "collector_refresh_failed", "motion_id", c.motionID, "error", err)
		c.send(ctx, tui.FetchError{Err: err})
		return
	}
	c.send(ctx, c.toBoard(ctx, board))
}

// send drops the snapshot when the TUI is behind; the next tick carries a newer one.
func (c *Collector) send(ctx context.Context, v any) {
	select {
	case c.out <- v:
	case <-ctx.Done():
	default:
		c.logger.Debug("board update dropped", "event", "collector_update_dropped", "motion_id", c.motionID)
	}
}

func (c *Collector) toBoard(ctx context.Context, b motion.Board) tui.Board {
	m := b.Motion
	out := tui.Board{
		Motion: tui.MotionInfo{
			ID:        m.ID,
			Title:     m.Title,
			Type:      string(m.Type),
			Status:    string(m.Status),
			Committee: c.committeeName(ctx, m.CommitteeID),
			Session:   c.sessionName(ctx, m.SessionID),
			UpdatedAt: m.UpdatedAt,
		},
		RefreshedAt: c.now(),
	}
	for _, r := range b.Rounds {
		ri := tui.RoundInfo{
			VoteType: string(r.Key.Type),
			Name:     r.Key.Name,
			Favor:    r.Totals.Favor,
			Against:  r.Totals.Against,
			Outcome:  string(r.Totals.Outcome),
		}
		for _, rec := range r.Records {
			name := rec.Party.Name
			if name == "" {
				name = "party " + uintString(rec.PartyID)
			}
			ri.Parties = append(ri.Parties, tui.PartyVote{Party: name, Approve: rec.ApproveCount, Reject: rec.RejectCount})
		}
		out.Rounds = append(out.Rounds, ri)
	}
	for _, h := range b.History {
		out.History = append(out.History, tui.HistoryInfo{
			At:     h.CreatedAt,
			Status: string(h.Status),
			Actor:  h.ActorName,
			Reason: h.Reason,
			Votes:  len(h.Votes),
		})
	}
	return out
}

func (c *Collector) committeeName(ctx context.Context, id *uint) string {
	if id == nil {
		return ""
	}
	if c.names != nil {
		if cm, err := c.names.Committee(ctx, *id); err == nil {
			return cm.Name
		}
	}
	return "#" + uintString(*id)
}

func (c *Collector) sessionName(ctx context.Context, id *uint) string {
	if id == nil {
		return ""
	}
	if c.names != nil {
		if s, err := c.names.Session(ctx, *id); err == nil {
			return s.Title
		}
	}
	return "#" + uintString(*id)
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
