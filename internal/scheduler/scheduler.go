package scheduler

import (
	"container/heap"
	"context"
	"time"

	"github.com/adhocore/gronx"
)

const maxSleepCap = 60 * time.Second

// Scheduler manages scheduled session starts using a min-heap.
// It runs a background goroutine that sleeps until the next event's
// trigger time, then calls the onTrigger callback with the event.
type Scheduler struct {
	addChan    chan StartEvent
	removeChan chan string
	listChan   chan chan []StartEvent
	ctx        context.Context
}

// New creates and starts a new Scheduler.
// The onTrigger callback is invoked when a scheduled event fires.
// The scheduler goroutine exits when ctx is cancelled.
func New(ctx context.Context, onTrigger func(StartEvent)) *Scheduler {
	s := &Scheduler{
		addChan:    make(chan StartEvent, 64),
		removeChan: make(chan string, 64),
		listChan:   make(chan chan []StartEvent),
		ctx:        ctx,
	}
	go s.run(onTrigger)
	return s
}

// Add enqueues a new start event.
func (s *Scheduler) Add(event StartEvent) {
	select {
	case s.addChan <- event:
	case <-s.ctx.Done():
	}
}

// Remove cancels a scheduled event by schedule ID.
func (s *Scheduler) Remove(id string) {
	select {
	case s.removeChan <- id:
	case <-s.ctx.Done():
	}
}

// List returns a snapshot of all pending events, earliest first.
// Returns nil if the scheduler has been stopped.
func (s *Scheduler) List() []StartEvent {
	reply := make(chan []StartEvent, 1)
	select {
	case s.listChan <- reply:
	case <-s.ctx.Done():
		return nil
	}
	select {
	case events := <-reply:
		return events
	case <-s.ctx.Done():
		return nil
	}
}

// run is the core scheduler goroutine implementing the active-object pattern.
// It maintains a min-heap of events and sleeps with a 60s max-sleep-cap.
// For recurring events (CronExpr != ""), after firing it computes the next
// occurrence and re-adds it to the heap automatically.
func (s *Scheduler) run(onTrigger func(StartEvent)) {
	h := &startHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			// No events — block indefinitely on channels
			return nil
		}
		next := (*h)[0].TriggerAt
		dur := time.Until(next)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case event := <-s.addChan:
			heapPush(h, event)
			timerCh = resetTimer()

		case id := <-s.removeChan:
			heapRemoveByID(h, id)
			timerCh = resetTimer()

		case reply := <-s.listChan:
			events := make([]StartEvent, len(*h))
			copy(events, *h)
			sortByTrigger(events)
			reply <- events

		case <-timerCh:
			// Check and fire all events whose time has arrived
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].TriggerAt.After(now) {
				event := heapPop(h)
				onTrigger(event)
				// Recurring events compute the next cron occurrence and re-add.
				if event.CronExpr != "" {
					next, err := NextOccurrence(event.CronExpr, time.Now())
					if err == nil {
						heapPush(h, StartEvent{
							ID:        event.ID,
							TriggerAt: next,
							CronExpr:  event.CronExpr,
						})
					}
				}
			}
			timerCh = resetTimer()
		}
	}
}

// sortByTrigger orders events by TriggerAt ascending using insertion sort;
// snapshots are small.
func sortByTrigger(events []StartEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].TriggerAt.Before(events[j-1].TriggerAt); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

// NextOccurrence returns the next time the cron expression fires strictly
// after start. Uses gronx.NextTickAfter with inclRefTime=false.
func NextOccurrence(expr string, start time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, start, false)
}

// HasOccurrenceWithinYear checks if a cron expression has any occurrence
// within 1 year from the given time. Returns false for invalid expressions
// or if no occurrence exists within the 1-year window.
func HasOccurrenceWithinYear(expr string, from time.Time) bool {
	next, err := gronx.NextTickAfter(expr, from, false)
	if err != nil {
		return false
	}
	return next.Before(from.Add(365 * 24 * time.Hour))
}
