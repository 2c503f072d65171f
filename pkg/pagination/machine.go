package pagination

import (
	"github.com/Sternrassler/posts-client/pkg/post"
)

// fetchKind identifies the load direction a fetch was issued for.
type fetchKind int

const (
	kindRefresh fetchKind = iota
	kindAppend
	kindPrepend
)

// String returns the kind label used in logs and metrics.
func (k fetchKind) String() string {
	switch k {
	case kindRefresh:
		return "refresh"
	case kindAppend:
		return "append"
	case kindPrepend:
		return "prepend"
	default:
		return "unknown"
	}
}

// request is a fetch the run loop must issue.
type request struct {
	generation uint64
	kind       fetchKind
	page       int
	size       int
}

// message is the closed set of inputs to transition.
type message interface {
	name() string
}

type initializeMsg struct {
	pageSize     int
	startingPage int
}

type refreshMsg struct{}

type loadNextMsg struct{}

type loadPreviousMsg struct{}

type retryMsg struct{}

type fetchedMsg struct {
	req   request
	posts []post.Post
	err   error
}

func (initializeMsg) name() string   { return "initialize" }
func (refreshMsg) name() string      { return "refresh" }
func (loadNextMsg) name() string     { return "load_next" }
func (loadPreviousMsg) name() string { return "load_previous" }
func (retryMsg) name() string        { return "retry" }
func (fetchedMsg) name() string      { return "fetched" }

// outcome is what a transition asks the run loop to do.
type outcome struct {
	// changed is set when the snapshot differs and must be published.
	changed bool

	// reset is set when a new generation started.
	reset bool

	// stale is set when a fetch result belonged to an older generation.
	stale bool

	requests []request
}

// machine is the coordinator state owned by the run loop.
type machine struct {
	state        State
	pageSize     int
	startingPage int
	initialized  bool
	seen         map[int]struct{}
}

func newMachine() *machine {
	return &machine{
		seen: make(map[int]struct{}),
	}
}

func (m *machine) snapshot() State {
	return m.state.clone()
}

// transition applies msg to m. It performs no I/O: fetches are returned as
// requests for the caller to issue.
func (m *machine) transition(msg message) outcome {
	switch msg := msg.(type) {
	case initializeMsg:
		return m.initialize(msg.pageSize, msg.startingPage)
	case refreshMsg:
		return m.refresh()
	case loadNextMsg:
		return m.loadNext()
	case loadPreviousMsg:
		return m.loadPrevious()
	case retryMsg:
		return m.retry()
	case fetchedMsg:
		return m.fetched(msg)
	default:
		return outcome{}
	}
}

func (m *machine) initialize(pageSize, startingPage int) outcome {
	m.pageSize = pageSize
	m.startingPage = startingPage
	m.initialized = true
	m.seen = make(map[int]struct{})
	m.state = State{
		Items:      []post.Post{},
		NextKey:    key(startingPage),
		Refresh:    Status{Phase: PhaseLoading},
		Generation: m.state.Generation + 1,
	}
	return outcome{
		changed:  true,
		reset:    true,
		requests: []request{m.request(kindRefresh, startingPage)},
	}
}

// refresh starts a new generation but keeps the current items visible until
// the first page resolves.
func (m *machine) refresh() outcome {
	if !m.initialized {
		return outcome{}
	}
	m.state.Generation++
	m.state.Refresh = Status{Phase: PhaseLoading}
	m.state.Append = Status{}
	m.state.Prepend = Status{}
	return outcome{
		changed:  true,
		reset:    true,
		requests: []request{m.request(kindRefresh, m.startingPage)},
	}
}

func (m *machine) loadNext() outcome {
	if m.state.NextKey == nil || m.state.Append.Loading() || m.state.Refresh.Phase != PhaseReady {
		return outcome{}
	}
	m.state.Append = Status{Phase: PhaseLoading}
	return outcome{
		changed:  true,
		requests: []request{m.request(kindAppend, *m.state.NextKey)},
	}
}

func (m *machine) loadPrevious() outcome {
	if m.state.PrevKey == nil || m.state.Prepend.Loading() || m.state.Refresh.Phase != PhaseReady {
		return outcome{}
	}
	m.state.Prepend = Status{Phase: PhaseLoading}
	return outcome{
		changed:  true,
		requests: []request{m.request(kindPrepend, *m.state.PrevKey)},
	}
}

// retry reissues exactly the requests that failed. A failed refresh takes
// precedence since no incremental load can start before it resolves.
func (m *machine) retry() outcome {
	if m.state.Refresh.Failed() {
		m.state.Refresh = Status{Phase: PhaseLoading}
		return outcome{
			changed:  true,
			requests: []request{m.request(kindRefresh, m.startingPage)},
		}
	}

	var out outcome
	if m.state.Append.Failed() && m.state.NextKey != nil {
		m.state.Append = Status{Phase: PhaseLoading}
		out.requests = append(out.requests, m.request(kindAppend, *m.state.NextKey))
	}
	if m.state.Prepend.Failed() && m.state.PrevKey != nil {
		m.state.Prepend = Status{Phase: PhaseLoading}
		out.requests = append(out.requests, m.request(kindPrepend, *m.state.PrevKey))
	}
	out.changed = len(out.requests) > 0
	return out
}

func (m *machine) fetched(msg fetchedMsg) outcome {
	if msg.req.generation != m.state.Generation {
		return outcome{stale: true}
	}

	switch msg.req.kind {
	case kindRefresh:
		if !m.state.Refresh.Loading() {
			return outcome{}
		}
		if msg.err != nil {
			m.state.Refresh = Status{Phase: PhaseFailed, Err: msg.err}
			return outcome{changed: true}
		}
		m.replace(msg.posts)
		m.state.Refresh = Status{Phase: PhaseReady}
		m.state.NextKey = nextKey(msg.req.page, msg.posts)
		m.state.PrevKey = prevKey(msg.req.page)

	case kindAppend:
		if !m.state.Append.Loading() {
			return outcome{}
		}
		if msg.err != nil {
			m.state.Append = Status{Phase: PhaseFailed, Err: msg.err}
			return outcome{changed: true}
		}
		m.append(msg.posts)
		m.state.Append = Status{}
		m.state.NextKey = nextKey(msg.req.page, msg.posts)

	case kindPrepend:
		if !m.state.Prepend.Loading() {
			return outcome{}
		}
		if msg.err != nil {
			m.state.Prepend = Status{Phase: PhaseFailed, Err: msg.err}
			return outcome{changed: true}
		}
		m.prepend(msg.posts)
		m.state.Prepend = Status{}
		if len(msg.posts) == 0 {
			m.state.PrevKey = nil
		} else {
			m.state.PrevKey = prevKey(msg.req.page)
		}
	}

	return outcome{changed: true}
}

func (m *machine) request(kind fetchKind, page int) request {
	return request{
		generation: m.state.Generation,
		kind:       kind,
		page:       page,
		size:       m.pageSize,
	}
}

// replace swaps the whole item list for posts.
func (m *machine) replace(posts []post.Post) {
	m.seen = make(map[int]struct{}, len(posts))
	m.state.Items = appendUnique(make([]post.Post, 0, len(posts)), posts, m.seen)
}

func (m *machine) append(posts []post.Post) {
	m.state.Items = appendUnique(m.state.Items, posts, m.seen)
}

func (m *machine) prepend(posts []post.Post) {
	head := appendUnique(make([]post.Post, 0, len(posts)+len(m.state.Items)), posts, m.seen)
	m.state.Items = append(head, m.state.Items...)
}

// appendUnique appends every post whose ID is not in seen, recording it.
func appendUnique(dst, posts []post.Post, seen map[int]struct{}) []post.Post {
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		dst = append(dst, p)
	}
	return dst
}

// nextKey applies the exhaustion rule: an empty page ends forward paging.
func nextKey(page int, posts []post.Post) *int {
	if len(posts) == 0 {
		return nil
	}
	return key(page + 1)
}

func prevKey(page int) *int {
	if page <= 1 {
		return nil
	}
	return key(page - 1)
}
