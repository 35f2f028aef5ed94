package distribution

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/taskgrid/taskgrid/internal/pkg/idgenerator"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
)

// listeners groups the distribution change events within the eventsGroupInterval to batches,
// so the listeners, see Node.OnChangeListener, do not react to every single event.
// A restart of a listener work is usually an expensive operation, see the Executor.
type listeners struct {
	clock     clock.Clock
	logger    log.Logger
	config    nodeConfig
	lock      *sync.Mutex
	listeners map[listenerID]*Listener
	buffer    Events
	ticker    *clock.Ticker // nil, if the events grouping is disabled
}

type listenerID string

// Listener listens for distribution changes in the cluster, new events are streamed to the channel C.
type Listener struct {
	all  *listeners
	id   listenerID
	C    chan Events
	done chan struct{}
}

func newListeners(proc *servicectx.Process, clk clock.Clock, logger log.Logger, config nodeConfig) *listeners {
	v := &listeners{
		clock:     clk,
		logger:    logger.AddPrefix("[listeners]"),
		config:    config,
		lock:      &sync.Mutex{},
		listeners: make(map[listenerID]*Listener),
	}

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	proc.OnShutdown(func() {
		v.logger.Info("received shutdown request")
		cancel()
		wg.Wait()
		v.logger.Info("shutdown done")
	})

	// Group events within the interval to one batch.
	// If the grouping is disabled, each event is dispatched immediately by the Notify method.
	if v.config.eventsGroupInterval > 0 {
		v.ticker = v.clock.Ticker(v.config.eventsGroupInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer v.ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-v.ticker.C:
					v.flush()
				}
			}
		}()
	}

	return v
}

// Notify buffers the event until the end of the grouping interval.
// If the grouping is disabled, the event is dispatched immediately.
func (v *listeners) Notify(event Event) {
	v.lock.Lock()
	v.buffer = append(v.buffer, event)
	v.lock.Unlock()

	if v.ticker == nil {
		v.flush()
	}
}

// Reset restarts the grouping interval.
// It is used on the node startup, so all events from the initial sync are grouped to one batch.
func (v *listeners) Reset() {
	if v.ticker != nil {
		v.ticker.Reset(v.config.eventsGroupInterval)
	}
}

// flush sends all buffered events to all registered listeners.
func (v *listeners) flush() {
	v.lock.Lock()
	defer v.lock.Unlock()

	if len(v.buffer) == 0 {
		return
	}

	events := v.buffer
	v.buffer = nil

	for _, l := range v.listeners {
		l.trigger(events)
	}
}

func (v *listeners) add() *Listener {
	v.lock.Lock()
	defer v.lock.Unlock()

	l := &Listener{
		all:  v,
		id:   listenerID(idgenerator.Random(10)),
		C:    make(chan Events, 1),
		done: make(chan struct{}),
	}
	v.listeners[l.id] = l

	return l
}

// Stop the listener, the channel C will no longer receive events.
// Already buffered events are dispatched before the stop.
func (l *Listener) Stop() {
	l.all.flush()
	l.all.lock.Lock()
	defer l.all.lock.Unlock()
	delete(l.all.listeners, l.id)
	close(l.done)
}

// trigger sends the events batch to the listener channel.
// If the channel contains a pending batch, the batches are merged,
// so a slow listener cannot block the watch stream.
func (l *Listener) trigger(events Events) {
	for {
		select {
		case l.C <- events:
			return
		case <-l.done:
			return
		default:
		}

		select {
		case pending := <-l.C:
			events = append(pending, events...)
		default:
		}
	}
}
