// Package loader provides a one-shot "load everything" coordinator with
// Loading, Success and Error states and manual retry.
package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/posts-client/internal/mailbox"
	"github.com/Sternrassler/posts-client/pkg/observe"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultErrorMessage is shown when a failure carries no description.
const DefaultErrorMessage = "Failed to load list."

var loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "posts_loader_loads_total",
	Help: "Total completed full loads by outcome",
}, []string{"outcome"})

// Phase is the coordinator status.
type Phase int

const (
	// PhaseLoading means a fetch is outstanding.
	PhaseLoading Phase = iota

	// PhaseSuccess means Posts holds the last fetched list.
	PhaseSuccess

	// PhaseError means the last fetch failed; Message describes it.
	PhaseError
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot.
type State struct {
	Phase   Phase
	Posts   []post.Post
	Message string
}

type loadMsg struct{}

type resultMsg struct {
	generation uint64
	posts      []post.Post
	err        error
}

// Coordinator fetches the complete list through a post.AllFetcher.
type Coordinator struct {
	fetcher post.AllFetcher
	logger  zerolog.Logger
	inbox   *mailbox.Mailbox[any]
	subject *observe.Subject[State]

	// Owned by the run loop.
	generation uint64
	loadCancel context.CancelFunc

	// notifying is set while the loop delivers a state to listeners.
	notifying atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	loads     sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a coordinator in the Loading state. Nothing is fetched until
// Load is called.
func New(fetcher post.AllFetcher, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher:    fetcher,
		logger:     log.With().Str("component", "loader").Logger(),
		inbox:      mailbox.New[any](),
		subject:    observe.NewSubject(State{Phase: PhaseLoading}),
		loadCancel: func() {},
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.run()
	return c
}

// Load sets the state to Loading and fetches the list. A load already in
// flight is superseded: its result is discarded.
func (c *Coordinator) Load() {
	c.inbox.Push(loadMsg{})
}

// Retry is Load; it is permitted in any state.
func (c *Coordinator) Retry() {
	c.Load()
}

// Snapshot returns the latest state.
func (c *Coordinator) Snapshot() State {
	return c.subject.Value()
}

// Observe streams the latest state followed by every later one.
func (c *Coordinator) Observe(ctx context.Context) <-chan State {
	return c.subject.Stream(ctx)
}

// Subscribe registers fn for every state, replaying the latest one first.
// The replay runs on the calling goroutine; later states are delivered on the
// coordinator's loop. fn may call Load, Retry and Close.
func (c *Coordinator) Subscribe(fn func(State)) (cancel func()) {
	return c.subject.Subscribe(fn)
}

// Close stops the coordinator and cancels an in-flight load. Called from a
// listener during delivery it returns without waiting for the loop.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.inbox.Close()
		c.cancel()
	})
	if c.notifying.Load() {
		return nil
	}
	<-c.done
	return nil
}

func (c *Coordinator) run() {
	defer close(c.done)
	defer c.subject.Close()
	defer c.loads.Wait()
	defer func() { c.loadCancel() }()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.inbox.Ready():
		}

		for _, msg := range c.inbox.Drain() {
			switch msg := msg.(type) {
			case loadMsg:
				c.start()
			case resultMsg:
				c.finish(msg)
			}
		}
	}
}

func (c *Coordinator) start() {
	c.loadCancel()
	c.generation++

	ctx, cancel := context.WithCancel(c.ctx)
	c.loadCancel = cancel
	generation := c.generation

	c.publish(State{Phase: PhaseLoading})

	c.loads.Add(1)
	go func() {
		defer c.loads.Done()
		start := time.Now()
		posts, err := c.fetcher.FetchAll(ctx)
		c.logger.Debug().
			Uint64("generation", generation).
			Dur("duration", time.Since(start)).
			Msg("Full fetch returned")
		c.inbox.Push(resultMsg{generation: generation, posts: posts, err: err})
	}()
}

func (c *Coordinator) finish(msg resultMsg) {
	if msg.generation != c.generation {
		c.logger.Debug().
			Uint64("generation", msg.generation).
			Msg("Discarding superseded load")
		return
	}

	if msg.err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(msg.err).Msg("Full fetch failed")
		c.publish(State{Phase: PhaseError, Message: Message(msg.err)})
		return
	}

	posts := msg.posts
	if posts == nil {
		posts = []post.Post{}
	}
	loadsTotal.WithLabelValues("success").Inc()
	c.logger.Info().Int("posts", len(posts)).Msg("Full fetch complete")
	c.publish(State{Phase: PhaseSuccess, Posts: posts})
}

func (c *Coordinator) publish(s State) {
	c.notifying.Store(true)
	c.subject.Publish(s)
	c.notifying.Store(false)
}

// Message derives a user-facing message from a fetch failure, falling back
// to DefaultErrorMessage when the failure carries no description.
func Message(err error) string {
	if msg := post.Describe(err); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}
