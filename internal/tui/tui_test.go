package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBoard() Board {
	return Board{
		Motion: MotionInfo{
			ID:        3,
			Title:     "Street lighting on Main Road",
			Type:      "resolution",
			Status:    "approved",
			Committee: "Finance",
			UpdatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Rounds: []RoundInfo{{
			VoteType: "regular",
			Name:     "Final Vote",
			Favor:    14,
			Against:  4,
			Outcome:  "adopted",
			Parties: []PartyVote{
				{Party: "Alliance", Approve: 8, Reject: 2},
				{Party: "Bloc", Approve: 6, Reject: 2},
			},
		}},
		History: []HistoryInfo{
			{At: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), Status: "draft", Actor: "clerk", Reason: "Motion created"},
			{At: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), Status: "approved", Actor: "clerk", Votes: 2},
		},
		RefreshedAt: time.Date(2024, 6, 1, 13, 5, 0, 0, time.UTC),
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestViewBeforeData(t *testing.T) {
	m := NewModel()
	assert.Equal(t, "Loading...", m.View())
	m = update(t, m, ErrorMsg{Err: errors.New("db down")})
	assert.Contains(t, m.View(), "db down")
}

func TestViewRendersBoard(t *testing.T) {
	m := update(t, NewModel(), tea.WindowSizeMsg{Width: 100, Height: 30})
	m = update(t, m, UpdateMsg{Board: sampleBoard()})

	view := m.View()
	assert.Contains(t, view, "motion #3 (resolution)")
	assert.Contains(t, view, "committee: Finance")
	assert.Contains(t, view, "session: none")
	assert.Contains(t, view, "regular / Final Vote  favor=14 against=4  adopted")
	assert.Contains(t, view, "Alliance 8/2")
	assert.Contains(t, view, "[2 votes]")
	assert.Contains(t, view, "Motion created")

	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, "status:") || strings.Contains(line, "refresh") {
			continue // styled cells may carry escape codes
		}
		assert.LessOrEqual(t, runewidth.StringWidth(line), 100, "line overflows: %q", line)
	}
}

func TestRefreshErrorKeepsBoard(t *testing.T) {
	m := update(t, NewModel(), tea.WindowSizeMsg{Width: 80, Height: 24})
	m = update(t, m, UpdateMsg{Board: sampleBoard()})
	m = update(t, m, ErrorMsg{Err: errors.New("timeout")})

	view := m.View()
	assert.Contains(t, view, "Final Vote")
	assert.Contains(t, view, "refresh failed: timeout")
}

func TestQuitKeys(t *testing.T) {
	m := NewModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestLayoutHelpers(t *testing.T) {
	assert.Equal(t, "ab  ", padToWidth("ab", 4))
	assert.Equal(t, "abcdef", padToWidth("abcdef", 4))
	assert.Equal(t, "abc...", truncateToWidth("abcdefghij", 6))
	assert.Equal(t, "ab", truncateToWidth("ab", 6))
	assert.Equal(t, "├──┤", separatorLine(4))
	assert.Equal(t, "│x │", formatInfoLine("x", 4))
	assert.Equal(t, "✅", outcomeSymbol("referred"))
	assert.Equal(t, "🤷", outcomeSymbol("tie"))
	assert.Equal(t, "default", strings.Split(roundLabel(RoundInfo{VoteType: "regular"}), " / ")[1])
}
