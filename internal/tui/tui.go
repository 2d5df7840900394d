// Package tui renders a live status board for one motion.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

// truncateToWidth cuts s to at most width display cells, marking the cut.
func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

func separatorLine(width int) string {
	if width < 2 {
		return strings.Repeat("─", width)
	}
	return "├" + strings.Repeat("─", width-2) + "┤"
}

func formatInfoLine(text string, width int) string {
	if width < 2 {
		return padToWidth(text, width)
	}
	return "│" + padToWidth(truncateToWidth(text, width-2), width-2) + "│"
}

// MotionInfo is the header of the board.
type MotionInfo struct {
	ID        uint
	Title     string
	Type      string
	Status    string
	Committee string
	Session   string
	UpdatedAt time.Time
}

// PartyVote is one party's line within a round.
type PartyVote struct {
	Party   string
	Approve uint
	Reject  uint
}

// RoundInfo is a round with its live totals.
type RoundInfo struct {
	VoteType string
	Name     string
	Favor    uint
	Against  uint
	Outcome  string
	Parties  []PartyVote
}

// HistoryInfo is one ledger line.
type HistoryInfo struct {
	At     time.Time
	Status string
	Actor  string
	Reason string
	Votes  int
}

// Board is a full snapshot pushed by the collector.
type Board struct {
	Motion      MotionInfo
	Rounds      []RoundInfo
	History     []HistoryInfo
	RefreshedAt time.Time
}

// FetchError reports a failed refresh; the last board stays on screen.
type FetchError struct {
	Err error
}

// UpdateMsg is sent when the board should be replaced
type UpdateMsg struct {
	Board Board
}

// ErrorMsg is sent when a refresh failed
type ErrorMsg struct {
	Err error
}

var (
	statusStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Model holds the TUI state
type Model struct {
	board  Board
	loaded bool
	err    error
	width  int
	height int
}

// NewModel creates a new TUI model
func NewModel() Model {
	return Model{}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case UpdateMsg:
		m.board = msg.Board
		m.loaded = true
		m.err = nil
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 || !m.loaded {
		if m.err != nil {
			return errorStyle.Render("Loading failed: " + m.err.Error())
		}
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderRounds(), m.renderHistory())
}

// renderHeader renders the motion header in two columns
func (m Model) renderHeader() string {
	mi := m.board.Motion
	leftWidth := (m.width - 3) / 2
	rightWidth := m.width - leftWidth - 3

	committee := mi.Committee
	if committee == "" {
		committee = "none"
	}
	session := mi.Session
	if session == "" {
		session = "none"
	}
	leftLines := []string{
		fmt.Sprintf("motion #%d (%s)", mi.ID, mi.Type),
		mi.Title,
		"status: " + statusStyle.Render(mi.Status),
	}
	rightLines := []string{
		"committee: " + committee,
		"session: " + session,
		"refreshed: " + m.board.RefreshedAt.Format("15:04:05"),
	}

	rows := make([]string, 0, len(leftLines))
	for i := range leftLines {
		left := padToWidth(truncateToWidth(leftLines[i], leftWidth), leftWidth)
		right := padToWidth(truncateToWidth(rightLines[i], rightWidth), rightWidth)
		rows = append(rows, "│"+left+"│"+right+"│")
	}
	if m.err != nil {
		rows = append(rows, formatInfoLine(errorStyle.Render("refresh failed: "+m.err.Error()), m.width))
	}

	topBorder := "┌" + strings.Repeat("─", leftWidth) + "┬" + strings.Repeat("─", rightWidth) + "┐"
	separator := "├" + strings.Repeat("─", leftWidth) + "┴" + strings.Repeat("─", rightWidth) + "┤"
	return topBorder + "\n" + strings.Join(rows, "\n") + "\n" + separator
}

func roundLabel(r RoundInfo) string {
	name := r.Name
	if name == "" {
		name = "default"
	}
	return fmt.Sprintf("%s / %s", r.VoteType, name)
}

// renderRounds renders each round with its party lines in columns
func (m Model) renderRounds() string {
	if len(m.board.Rounds) == 0 {
		return formatInfoLine("no votes recorded", m.width)
	}
	cols := 3
	colWidth := (m.width - 2) / cols
	if colWidth < 16 {
		cols = 1
		colWidth = m.width - 2
	}

	var lines []string
	for i, r := range m.board.Rounds {
		if i > 0 {
			lines = append(lines, separatorLine(m.width))
		}
		lines = append(lines, formatInfoLine(fmt.Sprintf("%s %s  favor=%d against=%d  %s",
			outcomeSymbol(r.Outcome), roundLabel(r), r.Favor, r.Against, r.Outcome), m.width))
		for start := 0; start < len(r.Parties); start += cols {
			var b strings.Builder
			for col := 0; col < cols; col++ {
				cell := ""
				if idx := start + col; idx < len(r.Parties) {
					p := r.Parties[idx]
					cell = fmt.Sprintf(" %s %d/%d", p.Party, p.Approve, p.Reject)
				}
				b.WriteString(padToWidth(truncateToWidth(cell, colWidth), colWidth))
			}
			lines = append(lines, formatInfoLine(b.String(), m.width))
		}
	}
	return strings.Join(lines, "\n")
}

// renderHistory renders the newest ledger entries that fit the screen
func (m Model) renderHistory() string {
	used := 5 + strings.Count(m.renderRounds(), "\n") + 1
	available := m.height - used - 3
	history := m.board.History
	if available < 1 {
		available = 1
	}
	if len(history) > available {
		history = history[len(history)-available:]
	}

	lines := []string{separatorLine(m.width)}
	for _, h := range history {
		text := fmt.Sprintf("%s %-20s %-10s", h.At.Format("2006-01-02 15:04"), h.Status, h.Actor)
		if h.Votes > 0 {
			text += fmt.Sprintf(" [%d votes]", h.Votes)
		}
		if h.Reason != "" {
			text += " " + strings.ReplaceAll(h.Reason, "\n", " ")
		}
		lines = append(lines, formatInfoLine(text, m.width))
	}
	lines = append(lines, separatorLine(m.width))
	lines = append(lines, formatInfoLine("When, Status, Actor, Votes, Reason  (q to quit)", m.width))
	lines = append(lines, "└"+strings.Repeat("─", max(m.width-2, 0))+"┘")
	return strings.Join(lines, "\n")
}

// outcomeSymbol returns the symbol for a round outcome
func outcomeSymbol(outcome string) string {
	switch outcome {
	case "adopted", "referred":
		return "✅"
	case "rejected", "not_referred":
		return "❌"
	case "tie":
		return "🤷"
	default:
		return "·"
	}
}

// Run starts the TUI program
func Run(updateCh <-chan any) error {
	m := NewModel()
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Start goroutine to receive updates
	go func() {
		for data := range updateCh {
			switch v := data.(type) {
			case Board:
				p.Send(UpdateMsg{Board: v})
			case FetchError:
				p.Send(ErrorMsg{Err: v.Err})
			}
		}
		// Channel closed, quit TUI
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
