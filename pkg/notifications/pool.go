package notifications

import (
	"context"
	"hash/maphash"
	"sync"
	"time"
)

// DefaultPoolSizes sizes each channel's worker pool. In-app delivery is
// local; the others wait on third parties.
var DefaultPoolSizes = map[Channel]int{
	ChannelInApp:   8,
	ChannelEmail:   4,
	ChannelPush:    4,
	ChannelSMS:     2,
	ChannelWebhook: 4,
}

// task is one unit of work for a channel pool.
type task struct {
	notification Notification
	attempt      DeliveryAttempt
}

// pool runs a fixed number of workers over an unbounded FIFO queue, so a
// slow channel never blocks the dispatch loop or other channels.
type pool struct {
	channel Channel
	size    int
	handle  func(ctx context.Context, t task)

	mu     sync.Mutex
	queue  []task
	signal chan struct{}
	wg     sync.WaitGroup
}

func newPool(ch Channel, size int, handle func(ctx context.Context, t task)) *pool {
	return &pool{
		channel: ch,
		size:    max(size, 1),
		handle:  handle,
		signal:  make(chan struct{}, 1),
	}
}

func (p *pool) enqueue(t task) {
	p.mu.Lock()
	p.queue = append(p.queue, t)
	p.mu.Unlock()
	p.notify()
}

func (p *pool) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *pool) next() (task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return task{}, false
	}
	t := p.queue[0]
	p.queue[0] = task{}
	p.queue = p.queue[1:]
	if len(p.queue) > 0 {
		p.notify()
	}
	return t, true
}

func (p *pool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// reset drops queued tasks. Store recovery re-enqueues them on start.
func (p *pool) reset() {
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}

// start launches the workers. They exit when ctx is done, after finishing
// the task in hand.
func (p *pool) start(ctx context.Context) {
	for range p.size {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				if t, ok := p.next(); ok {
					p.handle(ctx, t)
					if ctx.Err() != nil {
						return
					}
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-p.signal:
				}
			}
		}()
	}
}

func (p *pool) wait() { p.wg.Wait() }

// retryTimers holds the backoff timers of failed attempts awaiting retry.
type retryTimers struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer // attempt id -> timer
	stopped bool
}

func newRetryTimers() *retryTimers {
	return &retryTimers{timers: make(map[string]*time.Timer)}
}

// schedule calls fire after delay unless cancelled or stopped first.
func (r *retryTimers) schedule(attemptID string, delay time.Duration, fire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if old, ok := r.timers[attemptID]; ok {
		old.Stop()
	}
	r.timers[attemptID] = time.AfterFunc(max(delay, 0), func() {
		r.mu.Lock()
		delete(r.timers, attemptID)
		stopped := r.stopped
		r.mu.Unlock()
		if !stopped {
			fire()
		}
	})
}

// cancel stops the timer for attemptID. It reports whether the timer was
// stopped before firing.
func (r *retryTimers) cancel(attemptID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[attemptID]
	if !ok {
		return false
	}
	delete(r.timers, attemptID)
	return t.Stop()
}

func (r *retryTimers) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *retryTimers) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *retryTimers) restart() {
	r.mu.Lock()
	r.stopped = false
	r.mu.Unlock()
}

const lockStripes = 64

// keyedMutex serializes work per notification id without a global lock.
type keyedMutex struct {
	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{seed: maphash.MakeSeed()}
}

func (k *keyedMutex) lock(key string) func() {
	m := &k.locks[maphash.String(k.seed, key)%lockStripes]
	m.Lock()
	return m.Unlock
}
