package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultDropLogInterval = time.Minute

// Config controls dispatcher buffering and how lost events are reported.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of blocking
	// the authenticating request.
	DropIfFull bool
	// Logger receives drop warnings and sink failures. nil means slog.Default().
	Logger *slog.Logger
	// DropLogInterval is the minimum gap between two drop warnings.
	DropLogInterval time.Duration
}

// Dispatcher relays authentication events to a Sink on its own goroutine,
// so a slow sink never sits on the login path.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	dropped    atomic.Uint64
	reported   atomic.Uint64
	lastReport atomic.Int64
}

// NewDispatcher starts a dispatcher, or returns nil when auditing is
// disabled. A nil *Dispatcher is safe to use.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.DropLogInterval <= 0 {
		cfg.DropLogInterval = defaultDropLogInterval
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses the event but
// keeps the dispatcher alive.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("goshield: audit sink failed",
				"event_type", event.EventType,
				"authenticator", event.Authenticator,
				"panic", r,
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull it never blocks; otherwise it waits for
// buffer space until ctx is done, which counts as a drop.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)

	now := d.now().UnixNano()
	last := d.lastReport.Load()
	if last != 0 && now-last < int64(d.cfg.DropLogInterval) {
		return
	}
	if !d.lastReport.CompareAndSwap(last, now) {
		return
	}
	d.reportDrops("goshield: audit events dropped", slog.String("event_type", event.EventType))
}

// reportDrops logs the drops since the previous report, if any.
func (d *Dispatcher) reportDrops(msg string, attrs ...slog.Attr) {
	total := d.dropped.Load()
	prev := d.reported.Swap(total)
	if total <= prev {
		return
	}
	attrs = append(attrs,
		slog.Uint64("dropped", total-prev),
		slog.Uint64("dropped_total", total),
		slog.Int("buffer_size", d.cfg.BufferSize),
	)
	d.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

// Close stops accepting events, drains the buffer into the sink and reports
// drops not yet logged.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
		d.reportDrops("goshield: audit dispatcher closed with dropped events")
	})
}

// Dropped is the number of events lost since start.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
