// Package tui is the terminal front end: a home menu, the all-posts list,
// the paginated list and a post detail screen.
package tui

import (
	"context"

	"github.com/Sternrassler/posts-client/pkg/loader"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Texts shown when an error carries no description.
const (
	LoadPostsFailed = "Failed to load posts."
	LoadMoreFailed  = "Failed to load more posts."
	NoPosts         = "No posts available."
)

// ListSource is the single-fetch coordinator behind the all-posts screen.
type ListSource interface {
	Load()
	Retry()
	Observe(ctx context.Context) <-chan loader.State
}

// PageSource is the page coordinator behind the paginated screen.
type PageSource interface {
	Initialize(pageSize, startingPage int) error
	Refresh()
	LoadNext()
	Retry()
	Observe(ctx context.Context) <-chan pagination.State
}

// Options tunes the paginated screen.
type Options struct {
	PageSize     int
	StartingPage int

	// LoadAhead requests the next page once the cursor is this close to the end.
	LoadAhead int
}

type screen int

const (
	screenHome screen = iota
	screenAll
	screenPaged
	screenDetail
)

var menu = []string{"All posts", "Paginated posts"}

type loaderStateMsg struct{ state loader.State }

type pagedStateMsg struct{ state pagination.State }

// Model is the bubbletea model of the browser.
type Model struct {
	ctx  context.Context
	list ListSource
	page PageSource
	opts Options

	screen     screen
	backTo     screen
	menuCursor int
	all        cursor
	paged      cursor
	selected   post.Post

	listStarted bool
	listState   loader.State
	listCh      <-chan loader.State

	pagedStarted bool
	pagedState   pagination.State
	pagedCh      <-chan pagination.State
	initErr      error

	spinner spinner.Model
	keys    keyMap
	help    help.Model
	width   int
	height  int
}

// New builds the model. ctx bounds the state subscriptions.
func New(ctx context.Context, list ListSource, page PageSource, opts Options) Model {
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.StartingPage <= 0 {
		opts.StartingPage = 1
	}
	if opts.LoadAhead <= 0 {
		opts.LoadAhead = 3
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	h := help.New()
	h.Styles.ShortKey = helpStyle
	h.Styles.ShortDesc = helpStyle

	return Model{
		ctx:     ctx,
		list:    list,
		page:    page,
		opts:    opts,
		spinner: sp,
		keys:    defaultKeyMap(),
		help:    h,
		width:   80,
		height:  24,
	}
}

// Run starts the program on the terminal's alternate screen.
func Run(ctx context.Context, list ListSource, page PageSource, opts Options) error {
	p := tea.NewProgram(New(ctx, list, page, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loaderStateMsg:
		m.listState = msg.state
		m.all.clamp(len(m.listState.Posts))
		return m, waitLoader(m.listCh)

	case pagedStateMsg:
		m.pagedState = msg.state
		m.paged.clamp(len(m.pagedState.Items))
		return m, tea.Batch(waitPaged(m.pagedCh), m.maybeLoadNext())

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.screen {
		case screenHome:
			return m.updateHome(msg)
		case screenAll:
			return m.updateAll(msg)
		case screenPaged:
			return m.updatePaged(msg)
		case screenDetail:
			if key.Matches(msg, m.keys.Back) {
				m.screen = m.backTo
			}
		}
	}
	return m, nil
}

func (m Model) updateHome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.menuCursor < len(menu)-1 {
			m.menuCursor++
		}
	case key.Matches(msg, m.keys.Open):
		if m.menuCursor == 0 {
			return m.openAll()
		}
		return m.openPaged()
	}
	return m, nil
}

func (m Model) openAll() (tea.Model, tea.Cmd) {
	m.screen = screenAll
	if m.listStarted {
		return m, nil
	}
	m.listStarted = true
	m.listState = loader.State{Phase: loader.PhaseLoading}
	m.listCh = m.list.Observe(m.ctx)
	m.list.Load()
	return m, waitLoader(m.listCh)
}

func (m Model) openPaged() (tea.Model, tea.Cmd) {
	m.screen = screenPaged
	if m.pagedStarted {
		return m, nil
	}
	if err := m.page.Initialize(m.opts.PageSize, m.opts.StartingPage); err != nil {
		m.initErr = err
		return m, nil
	}
	m.pagedStarted = true
	m.initErr = nil
	m.pagedState = pagination.State{Refresh: pagination.Status{Phase: pagination.PhaseLoading}}
	m.pagedCh = m.page.Observe(m.ctx)
	return m, waitPaged(m.pagedCh)
}

func (m Model) updateAll(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	posts := m.listState.Posts
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = screenHome
	case key.Matches(msg, m.keys.Retry), key.Matches(msg, m.keys.Refresh):
		m.list.Retry()
	case key.Matches(msg, m.keys.Up):
		m.all.up()
	case key.Matches(msg, m.keys.Down):
		m.all.down(len(posts))
	case key.Matches(msg, m.keys.Open):
		if m.listState.Phase == loader.PhaseSuccess && m.all.index < len(posts) {
			m.selected = posts[m.all.index]
			m.backTo = screenAll
			m.screen = screenDetail
		}
	}
	return m, nil
}

func (m Model) updatePaged(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.pagedState.Items
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = screenHome
		return m, nil
	case key.Matches(msg, m.keys.Retry):
		if m.initErr != nil {
			return m.openPaged()
		}
		m.page.Retry()
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		if m.pagedStarted {
			m.page.Refresh()
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.paged.up()
	case key.Matches(msg, m.keys.Down):
		m.paged.down(len(items))
	case key.Matches(msg, m.keys.Open):
		if m.paged.index < len(items) {
			m.selected = items[m.paged.index]
			m.backTo = screenPaged
			m.screen = screenDetail
		}
		return m, nil
	}
	return m, m.maybeLoadNext()
}

// maybeLoadNext returns a command asking for the next page when the cursor
// nears the end of what is loaded. The coordinator ignores the signal while
// a load is outstanding, so a duplicate is harmless.
func (m Model) maybeLoadNext() tea.Cmd {
	s := m.pagedState
	if m.screen != screenPaged || !m.pagedStarted {
		return nil
	}
	if s.Refresh.Phase != pagination.PhaseReady || s.Append.Phase != pagination.PhaseIdle || !s.HasNext() {
		return nil
	}
	if len(s.Items)-m.paged.index > m.opts.LoadAhead {
		return nil
	}
	return loadNext(m.page)
}

func loadNext(page PageSource) tea.Cmd {
	return func() tea.Msg {
		page.LoadNext()
		return nil
	}
}

func waitLoader(ch <-chan loader.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return loaderStateMsg{state: s}
	}
}

func waitPaged(ch <-chan pagination.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return pagedStateMsg{state: s}
	}
}

// cursor is a selection with a scroll offset.
type cursor struct {
	index  int
	offset int
}

func (c *cursor) up() {
	if c.index > 0 {
		c.index--
	}
}

func (c *cursor) down(n int) {
	if c.index < n-1 {
		c.index++
	}
}

func (c *cursor) clamp(n int) {
	if c.index >= n {
		c.index = max(n-1, 0)
	}
}

// window returns the visible range for rows lines and adjusts the offset.
func (c *cursor) window(n, rows int) (start, end int) {
	if rows < 1 {
		rows = 1
	}
	if c.index < c.offset {
		c.offset = c.index
	}
	if c.index >= c.offset+rows {
		c.offset = c.index - rows + 1
	}
	if c.offset > max(n-rows, 0) {
		c.offset = max(n-rows, 0)
	}
	return c.offset, min(c.offset+rows, n)
}
