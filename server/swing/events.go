package swing

import "github.com/san-kum/shot-tracer/server/models"

// Event is a phase change, pushed onto an EventQueue.
type Event struct {
	Frame    int64             `json:"frame"`
	From     models.SwingPhase `json:"from"`
	To       models.SwingPhase `json:"to"`
	Launched bool              `json:"launched"`
}

// EventQueue is a fixed-size ring that drops the oldest event when full.
type EventQueue struct {
	buf     []Event
	head    int
	size    int
	dropped int
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultConfig().EventQueueSize
	}
	return &EventQueue{buf: make([]Event, capacity)}
}

func (q *EventQueue) Push(e Event) {
	if q.size == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
	}
	q.buf[(q.head+q.size)%len(q.buf)] = e
	q.size++
}

// Drain appends all queued events to dst in arrival order and empties the
// queue.
func (q *EventQueue) Drain(dst []Event) []Event {
	for q.size > 0 {
		dst = append(dst, q.buf[q.head])
		q.head = (q.head + 1) % len(q.buf)
		q.size--
	}
	q.head = 0
	return dst
}

func (q *EventQueue) Len() int {
	return q.size
}

// Dropped is the number of events lost to overflow since creation.
func (q *EventQueue) Dropped() int {
	return q.dropped
}
