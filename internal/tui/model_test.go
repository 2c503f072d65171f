package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/posts-client/pkg/loader"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	tea "github.com/charmbracelet/bubbletea"
)

type stubList struct {
	loads, retries int
	ch             chan loader.State
}

func (s *stubList) Load()  { s.loads++ }
func (s *stubList) Retry() { s.retries++ }
func (s *stubList) Observe(ctx context.Context) <-chan loader.State {
	if s.ch == nil {
		s.ch = make(chan loader.State, 1)
	}
	return s.ch
}

type stubPages struct {
	initErr                      error
	inits, nexts, retries, resfr int
	pageSize, startingPage       int
	ch                           chan pagination.State
}

func (s *stubPages) Initialize(pageSize, startingPage int) error {
	s.inits++
	s.pageSize, s.startingPage = pageSize, startingPage
	return s.initErr
}
func (s *stubPages) Refresh()  { s.resfr++ }
func (s *stubPages) LoadNext() { s.nexts++ }
func (s *stubPages) Retry()    { s.retries++ }
func (s *stubPages) Observe(ctx context.Context) <-chan pagination.State {
	if s.ch == nil {
		s.ch = make(chan pagination.State, 1)
	}
	return s.ch
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// pressAndRun applies msg and runs the returned command, as the program
// loop would.
func pressAndRun(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	if cmd != nil {
		cmd()
	}
	return next.(Model)
}

func makePosts(n int) []post.Post {
	posts := make([]post.Post, n)
	for i := range posts {
		posts[i] = post.Post{ID: i + 1, Title: "title", Body: "body", OwnerID: 1}
	}
	return posts
}

func newModel(list *stubList, pages *stubPages) Model {
	return New(context.Background(), list, pages, Options{PageSize: 5, StartingPage: 2, LoadAhead: 2})
}

func TestWindowSize(t *testing.T) {
	m := newModel(&stubList{}, &stubPages{})
	m = press(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	if m.width != 100 || m.height != 40 {
		t.Errorf("size = %dx%d, want 100x40", m.width, m.height)
	}
}

func TestQuit(t *testing.T) {
	m := newModel(&stubList{}, &stubPages{})
	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestHomeNavigation(t *testing.T) {
	m := newModel(&stubList{}, &stubPages{})
	if !strings.Contains(m.View(), "All posts") || !strings.Contains(m.View(), "Paginated posts") {
		t.Fatalf("home view missing choices:\n%s", m.View())
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.menuCursor != 1 {
		t.Errorf("menuCursor = %d, want 1", m.menuCursor)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.menuCursor != 1 {
		t.Errorf("menuCursor moved past last entry: %d", m.menuCursor)
	}
	m = press(t, m, keyRune('k'))
	if m.menuCursor != 0 {
		t.Errorf("menuCursor = %d, want 0", m.menuCursor)
	}
}

func TestAllPostsScreen(t *testing.T) {
	list := &stubList{}
	m := newModel(list, &stubPages{})

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.screen != screenAll {
		t.Fatalf("screen = %v, want all", m.screen)
	}
	if list.loads != 1 {
		t.Errorf("loads = %d, want 1", list.loads)
	}
	if !strings.Contains(m.View(), "Loading posts") {
		t.Errorf("expected loading view, got:\n%s", m.View())
	}

	m = press(t, m, loaderStateMsg{state: loader.State{Phase: loader.PhaseError, Message: "timeout"}})
	if !strings.Contains(m.View(), "timeout") {
		t.Errorf("expected error message, got:\n%s", m.View())
	}
	m = press(t, m, keyRune('r'))
	if list.retries != 1 {
		t.Errorf("retries = %d, want 1", list.retries)
	}

	m = press(t, m, loaderStateMsg{state: loader.State{Phase: loader.PhaseSuccess}})
	if !strings.Contains(m.View(), NoPosts) {
		t.Errorf("expected empty text, got:\n%s", m.View())
	}

	// Leaving and coming back does not start a second load.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if list.loads != 1 {
		t.Errorf("loads = %d after re-entry, want 1", list.loads)
	}
}

func TestAllPostsOpenDetail(t *testing.T) {
	list := &stubList{}
	m := newModel(list, &stubPages{})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	posts := makePosts(3)
	posts[1] = post.Post{ID: 2, Title: "second", Body: "the body", OwnerID: 7}
	m = press(t, m, loaderStateMsg{state: loader.State{Phase: loader.PhaseSuccess, Posts: posts}})
	m = press(t, m, keyRune('j'))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.screen != screenDetail {
		t.Fatalf("screen = %v, want detail", m.screen)
	}
	view := m.View()
	for _, want := range []string{"second", "the body", "User ID: 7"} {
		if !strings.Contains(view, want) {
			t.Errorf("detail view missing %q:\n%s", want, view)
		}
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.screen != screenAll {
		t.Errorf("esc from detail went to %v, want all", m.screen)
	}
}

func openPaged(t *testing.T, m Model) Model {
	t.Helper()
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	return press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestPagedInitialize(t *testing.T) {
	pages := &stubPages{}
	m := openPaged(t, newModel(&stubList{}, pages))

	if pages.inits != 1 || pages.pageSize != 5 || pages.startingPage != 2 {
		t.Errorf("Initialize(%d, %d) called %d times", pages.pageSize, pages.startingPage, pages.inits)
	}
	if !strings.Contains(m.View(), "Loading posts") {
		t.Errorf("expected full-screen loading, got:\n%s", m.View())
	}
}

func TestPagedInitializeError(t *testing.T) {
	pages := &stubPages{initErr: errors.New("invalid configuration")}
	m := openPaged(t, newModel(&stubList{}, pages))

	if !strings.Contains(m.View(), "invalid configuration") {
		t.Errorf("expected init error, got:\n%s", m.View())
	}
	pages.initErr = nil
	m = press(t, m, keyRune('r'))
	if pages.inits != 2 || m.initErr != nil {
		t.Errorf("retry should re-initialize: inits=%d err=%v", pages.inits, m.initErr)
	}
}

func TestPagedStates(t *testing.T) {
	next := 3
	ready := pagination.Status{Phase: pagination.PhaseReady}
	failed := pagination.Status{Phase: pagination.PhaseFailed, Err: &post.NetworkError{Description: "timeout"}}

	tests := []struct {
		name  string
		state pagination.State
		want  string
	}{
		{
			name:  "refresh failed",
			state: pagination.State{Refresh: pagination.Status{Phase: pagination.PhaseFailed, Err: errors.New("")}},
			want:  LoadPostsFailed,
		},
		{
			name:  "empty",
			state: pagination.State{Refresh: ready},
			want:  NoPosts,
		},
		{
			name:  "append failed",
			state: pagination.State{Items: makePosts(20), NextKey: &next, Refresh: ready, Append: failed},
			want:  "timeout",
		},
		{
			name:  "append loading",
			state: pagination.State{Items: makePosts(20), NextKey: &next, Refresh: ready, Append: pagination.Status{Phase: pagination.PhaseLoading}},
			want:  "Loading more",
		},
		{
			name:  "exhausted",
			state: pagination.State{Items: makePosts(20), Refresh: ready},
			want:  "End of posts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := openPaged(t, newModel(&stubList{}, &stubPages{}))
			m = press(t, m, pagedStateMsg{state: tt.state})
			if view := m.View(); !strings.Contains(view, tt.want) {
				t.Errorf("view missing %q:\n%s", tt.want, view)
			}
		})
	}
}

func TestPagedLoadsNextNearEnd(t *testing.T) {
	pages := &stubPages{}
	m := openPaged(t, newModel(&stubList{}, pages))

	next := 3
	m = press(t, m, pagedStateMsg{state: pagination.State{
		Items:   makePosts(5),
		NextKey: &next,
		Refresh: pagination.Status{Phase: pagination.PhaseReady},
	}})
	if pages.nexts != 0 {
		t.Fatalf("LoadNext called %d times before scrolling", pages.nexts)
	}

	m = pressAndRun(t, m, keyRune('j'))
	m = pressAndRun(t, m, keyRune('j'))
	if pages.nexts != 0 {
		t.Fatalf("LoadNext called too early (%d)", pages.nexts)
	}

	// The signal is carried by the returned command, not sent from Update.
	updated, cmd := m.Update(keyRune('j'))
	if pages.nexts != 0 {
		t.Fatalf("Update sent LoadNext directly (%d calls)", pages.nexts)
	}
	if cmd == nil {
		t.Fatal("expected a load command near the end of the list")
	}
	cmd()
	if pages.nexts != 1 {
		t.Errorf("LoadNext calls = %d, want 1", pages.nexts)
	}
	if updated.(Model).paged.index != 3 {
		t.Errorf("cursor = %d, want 3", updated.(Model).paged.index)
	}
}

func TestPagedNoLoadWhenExhausted(t *testing.T) {
	pages := &stubPages{}
	m := openPaged(t, newModel(&stubList{}, pages))
	m = press(t, m, pagedStateMsg{state: pagination.State{
		Items:   makePosts(2),
		Refresh: pagination.Status{Phase: pagination.PhaseReady},
	}})
	pressAndRun(t, m, keyRune('j'))

	if pages.nexts != 0 {
		t.Errorf("LoadNext called %d times without a next key", pages.nexts)
	}
}

func TestPagedRetryAndRefresh(t *testing.T) {
	pages := &stubPages{}
	m := openPaged(t, newModel(&stubList{}, pages))

	m = press(t, m, keyRune('r'))
	m = press(t, m, keyRune('R'))
	if pages.retries != 1 || pages.resfr != 1 {
		t.Errorf("retries=%d refreshes=%d, want 1 and 1", pages.retries, pages.resfr)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.screen != screenHome {
		t.Errorf("esc went to %v, want home", m.screen)
	}
}

func TestCursorWindow(t *testing.T) {
	c := cursor{index: 9}
	start, end := c.window(20, 5)
	if start != 5 || end != 10 {
		t.Errorf("window = [%d,%d), want [5,10)", start, end)
	}
	c.index = 2
	start, end = c.window(20, 5)
	if start != 2 || end != 7 {
		t.Errorf("window = [%d,%d), want [2,7)", start, end)
	}
	c = cursor{index: 0}
	if start, end = c.window(3, 5); start != 0 || end != 3 {
		t.Errorf("window = [%d,%d), want [0,3)", start, end)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
