package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

const defaultQueueSize = 256

// AsyncEventBus publishes events through a fixed worker pool so publishers never block.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	stopOnce  sync.Once
	started   atomic.Bool
	dropped   atomic.Int64
	onPanic   func(topic string, recovered any)

	// mu orders PublishAsync against Stop so nothing is queued after the drain.
	mu      sync.RWMutex
	stopped bool
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates a bus with workerNum workers and a bounded queue.
func NewAsyncEventBus(workerNum, queueSize int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 4
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// OnPanic registers a hook for handler panics. Must be set before Start.
func (aeb *AsyncEventBus) OnPanic(fn func(topic string, recovered any)) {
	aeb.onPanic = fn
}

// Start launches the workers. Calling it twice is a no-op.
func (aeb *AsyncEventBus) Start() {
	if !aeb.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop halts the workers. Queued events that were not picked up are discarded.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		aeb.mu.Unlock()

		close(aeb.stopChan)
		aeb.wg.Wait()
		for {
			select {
			case <-aeb.workChan:
				aeb.pending.Done()
			default:
				return
			}
		}
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.dispatch(event)
		}
	}
}

func (aeb *AsyncEventBus) dispatch(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil && aeb.onPanic != nil {
			aeb.onPanic(event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event and returns immediately. It reports false
// when the queue is full or the bus is stopped; the event is dropped.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()
	if aeb.stopped {
		aeb.dropped.Add(1)
		return false
	}

	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		aeb.pending.Done()
		aeb.dropped.Add(1)
		return false
	}
}

// Subscribe registers fn for topic.
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

// Unsubscribe removes fn from topic.
func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

// HasCallback reports whether topic has subscribers.
func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Dropped counts events discarded by PublishAsync.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// WaitAsync blocks until every queued event has been handled.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.pending.Wait()
}
