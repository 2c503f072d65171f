package pagination

import (
	"slices"

	"github.com/Sternrassler/posts-client/pkg/post"
)

// Phase is the lifecycle of one load direction.
type Phase int

const (
	// PhaseIdle means nothing is loading and nothing failed. A Refresh
	// status is only idle before Initialize.
	PhaseIdle Phase = iota

	// PhaseLoading means a fetch is outstanding.
	PhaseLoading

	// PhaseReady means the first page resolved. Only used by refresh.
	PhaseReady

	// PhaseFailed means the last fetch failed; Status.Err holds the cause.
	PhaseFailed
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the state of one load direction.
type Status struct {
	Phase Phase
	Err   error
}

// Loading reports whether a fetch is outstanding.
func (s Status) Loading() bool { return s.Phase == PhaseLoading }

// Failed reports whether the last fetch failed.
func (s Status) Failed() bool { return s.Phase == PhaseFailed }

// Page is one fetch's worth of posts and the page number that produced it.
type Page struct {
	Number int
	Items  []post.Post
}

// State is an immutable snapshot of a coordinator.
type State struct {
	// Items in page order, then in-page order. IDs are unique.
	Items []post.Post

	// NextKey is the next forward page, nil once an empty page was seen and
	// also nil before Initialize.
	NextKey *int

	// PrevKey is the next backward page, nil at page 1 or once exhausted.
	PrevKey *int

	// Refresh describes the initial or reset load.
	Refresh Status

	// Append describes forward incremental loads.
	Append Status

	// Prepend describes backward incremental loads.
	Prepend Status

	// Generation increments on every Initialize and Refresh.
	Generation uint64
}

// Initialized reports whether Initialize has been called. The zero state has
// no NextKey without being exhausted.
func (s State) Initialized() bool { return s.Refresh.Phase != PhaseIdle }

// HasNext reports whether forward pagination can continue.
func (s State) HasNext() bool { return s.NextKey != nil }

// Exhausted reports whether the first page resolved and forward pagination
// reached an empty page.
func (s State) Exhausted() bool { return s.Refresh.Phase == PhaseReady && s.NextKey == nil }

// HasPrevious reports whether backward pagination can continue.
func (s State) HasPrevious() bool { return s.PrevKey != nil }

func (s State) clone() State {
	s.Items = slices.Clone(s.Items)
	if s.Items == nil {
		s.Items = []post.Post{}
	}
	s.NextKey = copyKey(s.NextKey)
	s.PrevKey = copyKey(s.PrevKey)
	return s
}

func key(page int) *int {
	return &page
}

func copyKey(k *int) *int {
	if k == nil {
		return nil
	}
	return key(*k)
}
