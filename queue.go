package avcore

import "sync"

// CheckResult is what a queue [Check] predicate returns: whether the
// blocked push/pop may proceed (Test), should keep waiting on the shared
// condition even though space/data exists (Wait, used to suspend decode
// while paused), or should abort and hand a tag back to the caller (Skip,
// used for flush/stop/seek/interrupt).
type CheckResult int

const (
	CheckTest CheckResult = iota
	CheckWait
	CheckSkip
)

// Check is the predicate associated with a blocking queue operation. It
// returns the [CheckResult] and, for CheckSkip, a tag identifying why
// (flush/stop/seek/interrupt) so the caller can branch on it.
type Check func() (result CheckResult, tag int)

// BoundedQueue is a fixed-capacity ring of pre-allocated elements shared by
// exactly one producer and one consumer goroutine, where element payloads
// are rewritten in place rather than reallocated per item. It backs both
// packet flow (reader -> decoder) and RGB frame flow (decoder -> renderer).
//
// All BoundedQueues created for a single [Engine] share one mutex and one
// condition variable: a predicate blocked on queue A can be woken by a
// state change that only ever broadcasts on queue B's condition, because
// they're the same condition. Do not give a queue its own private lock.
type BoundedQueue[T any] struct {
	mu   *sync.Mutex
	cond *sync.Cond

	slots []T
	free  []int // indices of free slots, LIFO
	used  []int // indices of used slots, FIFO order of commitment
}

// NewBoundedQueue creates a queue of the given capacity. alloc is invoked
// once per slot to produce its initial payload; if any call returns an
// error the partially built queue is discarded. The per-slot destructor
// is not taken here; it is passed to [BoundedQueue.Destroy].
//
// mu/cond must be the engine's shared queue mutex/condition (see the type
// doc); the caller must already hold mu when calling any BoundedQueue
// method below ("_Locked" suffix) or must not hold it for the blocking
// entry points, which acquire it themselves.
func NewBoundedQueue[T any](capacity int, mu *sync.Mutex, cond *sync.Cond, alloc func() (T, error)) (*BoundedQueue[T], error) {
	q := &BoundedQueue[T]{
		mu:    mu,
		cond:  cond,
		slots: make([]T, capacity),
		free:  make([]int, 0, capacity),
		used:  make([]int, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		v, err := alloc()
		if err != nil {
			return nil, statusErr(StatusAllocFailed, err)
		}
		q.slots[i] = v
		q.free = append(q.free, i)
	}
	return q, nil
}

// Destroy invokes destroy once per slot. Must be called with no producer
// or consumer active and not concurrently with any other queue method.
func (q *BoundedQueue[T]) Destroy(destroy func(T)) {
	if destroy == nil {
		return
	}
	for i := range q.slots {
		destroy(q.slots[i])
	}
}

// Len_Locked returns the number of currently used slots. Caller holds mu.
func (q *BoundedQueue[T]) Len_Locked() int { return len(q.used) }

// Cap returns the queue's fixed capacity.
func (q *BoundedQueue[T]) Cap() int { return len(q.slots) }

// PushStart blocks until a free slot exists and check allows proceeding,
// or check skips. On success it returns the slot index for the caller to
// write into (via [BoundedQueue.Slot]) and true; the caller must follow up
// with [BoundedQueue.PushFinish]. On skip it returns the tag and false.
func (q *BoundedQueue[T]) PushStart(check Check) (slot int, tag int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		result, t := check()
		switch result {
		case CheckSkip:
			return 0, t, false
		case CheckTest:
			if len(q.free) > 0 {
				idx := q.free[len(q.free)-1]
				q.free = q.free[:len(q.free)-1]
				return idx, 0, true
			}
		case CheckWait:
			// fall through to wait even though a slot might be free
		}
		q.cond.Wait()
	}
}

// PushFinish publishes the slot populated after a successful PushStart and
// broadcasts the shared condition so waiters on any queue re-evaluate.
func (q *BoundedQueue[T]) PushFinish(slot int) {
	q.mu.Lock()
	q.used = append(q.used, slot)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// PopStart blocks until a used slot exists and check allows proceeding, or
// check skips. On success it returns the slot index and true; the caller
// must follow with [BoundedQueue.PopFinish] once done reading.
func (q *BoundedQueue[T]) PopStart(check Check) (slot int, tag int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		result, t := check()
		switch result {
		case CheckSkip:
			return 0, t, false
		case CheckTest:
			if len(q.used) > 0 {
				idx := q.used[0]
				q.used = q.used[1:]
				return idx, 0, true
			}
		case CheckWait:
		}
		q.cond.Wait()
	}
}

// PopStartNonblocking drains one used slot without waiting on any
// predicate, for the non-blocking flush/stop drain paths. Returns
// ok=false if the queue is currently empty.
func (q *BoundedQueue[T]) PopStartNonblocking() (slot int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.used) == 0 {
		return 0, false
	}
	idx := q.used[0]
	q.used = q.used[1:]
	return idx, true
}

// PopFinish releases a popped slot back to the free ring and broadcasts.
func (q *BoundedQueue[T]) PopFinish(slot int) {
	q.mu.Lock()
	q.free = append(q.free, slot)
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Slot returns a pointer to the payload at the given index so the caller
// can read or write it in place between Start/Finish. Safe to call without
// holding mu: the slot is exclusively owned by the caller between a
// successful Start and the matching Finish.
func (q *BoundedQueue[T]) Slot(index int) *T { return &q.slots[index] }
