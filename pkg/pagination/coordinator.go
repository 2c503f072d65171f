package pagination

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/posts-client/internal/mailbox"
	"github.com/Sternrassler/posts-client/pkg/observe"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Coordinator drives page-based loading over a post.PageFetcher and exposes
// the result as a stream of State snapshots.
type Coordinator struct {
	fetcher post.PageFetcher
	logger  zerolog.Logger

	inbox   *mailbox.Mailbox[message]
	subject *observe.Subject[State]

	// Owned by the run loop.
	machine   *machine
	genCtx    context.Context
	genCancel context.CancelFunc

	// notifying is set while the loop delivers a snapshot to listeners.
	notifying atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	fetches   sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for transition and fetch events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a coordinator and starts its run loop. Call Initialize to load
// the first page and Close to release it.
func New(fetcher post.PageFetcher, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher: fetcher,
		logger:  log.With().Str("component", "pagination").Logger(),
		inbox:   mailbox.New[message](),
		subject: observe.NewSubject(newMachine().snapshot()),
		machine: newMachine(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.genCtx, c.genCancel = context.WithCancel(ctx)

	go c.run()
	return c
}

// Initialize resets the state and loads startingPage. Calling it again starts
// over; results of fetches issued before the call are discarded. It fails
// synchronously with a *ConfigError for a non-positive page size or a
// starting page below 1.
func (c *Coordinator) Initialize(pageSize, startingPage int) error {
	if err := validate(pageSize, startingPage); err != nil {
		return err
	}
	return c.send(initializeMsg{pageSize: pageSize, startingPage: startingPage})
}

// Refresh reloads the starting page while keeping the current items visible
// until it resolves. It is a no-op before Initialize.
func (c *Coordinator) Refresh() {
	_ = c.send(refreshMsg{})
}

// LoadNext requests the next forward page. It is a no-op when pagination is
// exhausted, an append is already in flight, or the first page has not
// resolved.
func (c *Coordinator) LoadNext() {
	_ = c.send(loadNextMsg{})
}

// LoadPrevious requests the previous page, prepending it to the items.
func (c *Coordinator) LoadPrevious() {
	_ = c.send(loadPreviousMsg{})
}

// Retry reissues whichever load failed. It is a no-op when nothing failed.
func (c *Coordinator) Retry() {
	_ = c.send(retryMsg{})
}

// Snapshot returns the latest state. Before Initialize it is the zero state:
// Refresh is PhaseIdle and NextKey is nil, which does not mean exhausted.
// Check State.Initialized first.
func (c *Coordinator) Snapshot() State {
	return c.subject.Value()
}

// Observe streams the latest state followed by one snapshot per transition.
// A stream opened before Initialize starts with the uninitialized state (see
// Snapshot). The channel closes when ctx is done or the coordinator is closed.
func (c *Coordinator) Observe(ctx context.Context) <-chan State {
	return c.subject.Stream(ctx)
}

// Subscribe registers fn for every snapshot, replaying the latest one first.
// The replay runs on the calling goroutine; later snapshots are delivered on
// the coordinator's loop. fn may call the signals and Close.
func (c *Coordinator) Subscribe(fn func(State)) (cancel func()) {
	return c.subject.Subscribe(fn)
}

// Close stops the run loop, cancels outstanding fetches and ends every
// stream. It waits for the loop to finish, except when called from a listener
// while the loop is delivering a snapshot: the loop then stops as soon as
// the listener returns.
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

func (c *Coordinator) send(msg message) error {
	if !c.inbox.Push(msg) {
		return ErrClosed
	}
	return nil
}

func (c *Coordinator) run() {
	defer close(c.done)
	defer c.subject.Close()
	defer c.fetches.Wait()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.inbox.Ready():
		}

		for _, msg := range c.inbox.Drain() {
			if c.ctx.Err() != nil {
				return
			}
			c.handle(msg)
		}
	}
}

func (c *Coordinator) handle(msg message) {
	out := c.machine.transition(msg)

	if fetched, ok := msg.(fetchedMsg); ok {
		c.recordFetch(fetched, out)
	}
	if !out.changed {
		return
	}

	paginationTransitionsTotal.WithLabelValues(msg.name()).Inc()

	if out.reset {
		c.genCancel()
		c.genCtx, c.genCancel = context.WithCancel(c.ctx)
	}

	state := c.machine.snapshot()
	c.logger.Debug().
		Str("message", msg.name()).
		Uint64("generation", state.Generation).
		Int("items", len(state.Items)).
		Str("refresh", state.Refresh.Phase.String()).
		Str("append", state.Append.Phase.String()).
		Str("prepend", state.Prepend.Phase.String()).
		Msg("State transition")
	c.notifying.Store(true)
	c.subject.Publish(state)
	c.notifying.Store(false)

	for _, req := range out.requests {
		c.launch(req)
	}
}

func (c *Coordinator) recordFetch(msg fetchedMsg, out outcome) {
	kind := msg.req.kind.String()

	if out.stale {
		paginationStaleResultsTotal.Inc()
		c.logger.Debug().
			Str("kind", kind).
			Int("page", msg.req.page).
			Uint64("generation", msg.req.generation).
			Msg("Discarding stale page result")
		return
	}
	if !out.changed {
		return
	}

	if msg.err != nil {
		paginationFetchFailuresTotal.WithLabelValues(kind).Inc()
		c.logger.Warn().
			Err(msg.err).
			Str("kind", kind).
			Int("page", msg.req.page).
			Msg("Page fetch failed")
		return
	}

	paginationPagesLoadedTotal.WithLabelValues(kind).Inc()
	c.logger.Info().
		Str("kind", kind).
		Int("page", msg.req.page).
		Int("page_size", msg.req.size).
		Int("received", len(msg.posts)).
		Msg("Page loaded")
}

// launch runs a fetch off the loop and posts the result back to the inbox.
func (c *Coordinator) launch(req request) {
	ctx := c.genCtx
	c.fetches.Add(1)

	go func() {
		defer c.fetches.Done()

		start := time.Now()
		posts, err := c.fetcher.FetchPage(ctx, req.page, req.size)

		c.logger.Debug().
			Str("kind", req.kind.String()).
			Int("page", req.page).
			Uint64("generation", req.generation).
			Dur("duration", time.Since(start)).
			Msg("Page fetch returned")

		c.inbox.Push(fetchedMsg{req: req, posts: posts, err: err})
	}()
}
