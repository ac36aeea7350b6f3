// Package ui renders CLI output and prompts for fieldscribe.
package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// Theme holds the styles for one output stream.
type Theme struct {
	renderer *lipgloss.Renderer

	Header lipgloss.Style
	Muted  lipgloss.Style
	OK     lipgloss.Style
	Warn   lipgloss.Style
	Fail   lipgloss.Style

	phases map[types.Phase]lipgloss.Style
}

// NewTheme detects the color profile of w. NO_COLOR disables color.
func NewTheme(w io.Writer) *Theme {
	r := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return newTheme(r)
}

// PlainTheme never emits escape sequences.
func PlainTheme() *Theme {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	return newTheme(r)
}

func newTheme(r *lipgloss.Renderer) *Theme {
	return &Theme{
		renderer: r,
		Header:   r.NewStyle().Bold(true),
		Muted:    r.NewStyle().Foreground(lipgloss.Color("8")),
		OK:       r.NewStyle().Foreground(lipgloss.Color("2")),
		Warn:     r.NewStyle().Foreground(lipgloss.Color("3")),
		Fail:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		phases: map[types.Phase]lipgloss.Style{
			types.PhaseNew:        r.NewStyle().Foreground(lipgloss.Color("6")),
			types.PhaseInProgress: r.NewStyle().Foreground(lipgloss.Color("3")),
			types.PhaseCompleted:  r.NewStyle().Foreground(lipgloss.Color("2")),
			types.PhaseRejected:   r.NewStyle().Foreground(lipgloss.Color("1")),
		},
	}
}

// Phase renders a lifecycle phase.
func (t *Theme) Phase(p types.Phase) string {
	if s, ok := t.phases[p]; ok {
		return s.Render(p.String())
	}
	return p.String()
}

// Synced renders the synced flag.
func (t *Theme) Synced(synced bool) string {
	if synced {
		return t.OK.Render("synced")
	}
	return t.Warn.Render("pending")
}

// Successf formats a success line.
func (t *Theme) Successf(format string, args ...any) string {
	return t.OK.Render("✓") + " " + fmt.Sprintf(format, args...)
}

// Warnf formats a warning line.
func (t *Theme) Warnf(format string, args ...any) string {
	return t.Warn.Render("!") + " " + fmt.Sprintf(format, args...)
}

// Errorf formats an error line.
func (t *Theme) Errorf(format string, args ...any) string {
	return t.Fail.Render("✗") + " " + fmt.Sprintf(format, args...)
}

// TaskTable renders tasks as a bordered table.
func (t *Theme) TaskTable(tasks []types.Task) string {
	rows := make([][]string, 0, len(tasks))
	for i := range tasks {
		task := &tasks[i]
		audio := "-"
		if task.HasLocalFile() {
			audio = "yes"
		}
		rows = append(rows, []string{
			task.ID.String(),
			task.RemoteID.String(),
			task.DisplayName,
			FormatMillis(task.Length),
			t.Phase(task.Phase()),
			t.Synced(task.IsSynced()),
			audio,
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(t.Muted).
		Headers("ID", "REMOTE", "NAME", "LENGTH", "PHASE", "SYNC", "AUDIO").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return t.Header.Padding(0, 1)
			}
			return t.renderer.NewStyle().Padding(0, 1)
		})
	return tbl.Render()
}

// FormatMillis renders a millisecond length as m:ss.mmm.
func FormatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int64(d / time.Minute)
	seconds := int64((d % time.Minute) / time.Second)
	millis := int64((d % time.Second) / time.Millisecond)
	return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
}
