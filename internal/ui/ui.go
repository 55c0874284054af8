package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/portalsync/internal/formatter"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/syncer"
	"github.com/desertthunder/portalsync/internal/tasks"
)

const (
	opStream  = "stream"
	opRefresh = "refresh"
)

// Source runs the operations the view offers. [*syncer.Resource] implements it.
type Source[T models.Item] interface {
	Stream(ctx context.Context, scope models.Scope, sink syncer.Sink[T]) (*syncer.Response[T], error)
	Refresh(ctx context.Context, scope models.Scope, sink syncer.Sink[T]) (*syncer.Response[T], error)
}

// Model is the watch view for one scope of one resource.
type Model[T models.Item] struct {
	ctx      context.Context
	title    string
	scope    models.Scope
	source   Source[T]
	describe Describer[T]

	set     *syncer.WorkingSet[T]
	updates chan struct{}

	snap   syncer.Snapshot[T]
	age    time.Duration
	failed int
	err    error

	width    int
	height   int
	list     list.Model
	progress progress.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
}

// NewModel creates a watch view. Nothing runs until the program calls Init.
func NewModel[T models.Item](ctx context.Context, title string, scope models.Scope, src Source[T], describe Describer[T]) *Model[T] {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)

	return &Model[T]{
		ctx:      ctx,
		title:    title,
		scope:    scope,
		source:   src,
		describe: describe,
		set:      syncer.NewWorkingSet[T](),
		updates:  make(chan struct{}, 1),
		list:     l,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.loading)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Run starts the program and blocks until the user quits or ctx is done.
func Run[T models.Item](ctx context.Context, m *Model[T]) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// SessionExpired drops the working set; register it with [syncer.Engine.OnSessionExpired].
func (m *Model[T]) SessionExpired() {
	m.set.Reset()
	m.notify()
}

// Init starts the stream and the update loop.
func (m *Model[T]) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(opStream), m.waitForUpdate())
}

// Update handles incoming messages and updates the model state.
func (m *Model[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		m.progress.Width = min(max(msg.Width-20, 10), 60)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.refresh):
			m.err = nil
			return m, m.start(opRefresh)
		case key.Matches(msg, m.keys.help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgUpdated:
			m.snap = m.set.Snapshot()
			cmd := m.list.SetItems(rows(m.snap.Items, m.describe))
			return m, tea.Batch(cmd, m.waitForUpdate())
		case MsgOperationDone:
			res := msg.data.(operationResult)
			m.err = res.err
			if res.err == nil {
				m.age = res.age
				m.failed = res.failed
			}
			return m, nil
		case MsgClosed:
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the status line, the item list and the help bar.
func (m *Model[T]) View() string {
	var b strings.Builder
	b.WriteString(m.status())
	b.WriteString("\n\n")
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model[T]) status() string {
	snap := m.snap
	switch {
	case snap.Loading:
		line := fmt.Sprintf("%s Loading %s", m.spinner.View(), m.title)
		if snap.Total > 0 {
			pct := float64(snap.Completed) / float64(snap.Total)
			line += fmt.Sprintf("\n%s %d/%d %s", m.progress.ViewAs(pct), snap.Completed, snap.Total, styles.muted.Render(snap.Label))
		}
		return line
	case snap.Err != "":
		return styles.err.Render("Error: " + snap.Err)
	case m.err != nil:
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	default:
		summary := formatter.Summary(len(snap.Items), snap.FromCache, m.age, m.failed)
		if m.failed > 0 {
			return styles.warn.Render("! " + summary)
		}
		return styles.ok.Render("✓ " + summary)
	}
}

func (m *Model[T]) sink(ev tasks.Event[T]) {
	if m.set.Apply(ev) {
		m.notify()
	}
}

// notify never blocks; one pending nudge covers any number of applied events.
func (m *Model[T]) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func (m *Model[T]) start(op string) tea.Cmd {
	return func() tea.Msg {
		var resp *syncer.Response[T]
		var err error
		if op == opRefresh {
			resp, err = m.source.Refresh(m.ctx, m.scope, m.sink)
		} else {
			resp, err = m.source.Stream(m.ctx, m.scope, m.sink)
		}

		res := operationResult{op: op, err: err}
		if resp != nil {
			res.count = len(resp.Data)
			res.fromCache = resp.FromCache
			res.age = resp.Age
			res.failed = len(resp.Failures)
		}
		return operationDoneMsg(res)
	}
}

func (m *Model[T]) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return closedMsg()
		case <-m.updates:
			return updatedMsg()
		}
	}
}
