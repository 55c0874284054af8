package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/portalsync/internal/syncer"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Palette is a small stylesheet of named [lipgloss.Style] fields.
type Palette struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	help    lipgloss.Style
	muted   lipgloss.Style
	loading lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:   NewBold(t).MarginBottom(1),
		ok:      NewBold(s),
		err:     NewBold(e),
		warn:    NewStyle(w),
		help:    NewEm(h),
		muted:   NewStyle(h),
		loading: NewStyle(t),
	}
}

// State picks the style a stream state is rendered in.
func (p *Palette) State(s syncer.State) lipgloss.Style {
	switch s {
	case syncer.StateLoading:
		return p.loading
	case syncer.StateSuccess:
		return p.ok
	case syncer.StateError:
		return p.err
	default:
		return p.muted
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
