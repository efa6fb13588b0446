package processor

import (
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/trajectory"
	"github.com/san-kum/shot-tracer/server/vision"
)

// ProcessingQueue feeds items to a fixed set of workers. A session uses a
// single worker so its items run strictly in arrival order.
type ProcessingQueue struct {
	items      chan *QueueItem
	workers    int
	workerFunc func(*QueueItem)
	wg         sync.WaitGroup
	shutdown   chan struct{}
	isRunning  bool
	mutex      sync.RWMutex
}

type itemKind int

const (
	kindFrame itemKind = iota
	kindControl
	kindCandidate
)

// QueueItem is one unit of session work: a frame, a control request or an
// externally supplied trajectory observation.
type QueueItem struct {
	kind itemKind

	Frame       vision.Frame
	Orientation models.Orientation
	Timestamp   int64
	Keypoint    *models.KeypointSample

	Control *models.ControlRequest

	Observation trajectory.Observation
	Additive    bool

	ResultChan chan *ProcessingResult
	StartTime  time.Time
}

type ProcessingResult struct {
	Frame *models.FrameResult
	Info  *models.SessionInfo
	Error error
}

func newQueueItem(kind itemKind) *QueueItem {
	return &QueueItem{
		kind:       kind,
		ResultChan: make(chan *ProcessingResult, 1),
		StartTime:  time.Now(),
	}
}

// reply never blocks; ResultChan is buffered for exactly one result.
func (item *QueueItem) reply(res *ProcessingResult) {
	select {
	case item.ResultChan <- res:
	default:
	}
}

func NewProcessingQueue(queueSize, workers int, workerFunc func(*QueueItem)) *ProcessingQueue {
	queue := &ProcessingQueue{
		items:      make(chan *QueueItem, queueSize),
		workers:    workers,
		workerFunc: workerFunc,
		shutdown:   make(chan struct{}),
		isRunning:  true,
	}

	for i := 0; i < workers; i++ {
		queue.wg.Add(1)
		go queue.worker(i)
	}

	return queue
}

func (pq *ProcessingQueue) worker(id int) {
	defer pq.wg.Done()

	for {
		select {
		case item := <-pq.items:
			if item != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							item.reply(&ProcessingResult{
								Error: fmt.Errorf("worker %d panic: %v", id, r),
							})
						}
					}()

					pq.workerFunc(item)
				}()
			}
		case <-pq.shutdown:
			return
		}
	}
}

// Enqueue adds an item without blocking. It reports false when the queue is
// full or shut down.
func (pq *ProcessingQueue) Enqueue(item *QueueItem) bool {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()
	if !pq.isRunning {
		return false
	}

	select {
	case pq.items <- item:
		return true
	default:
		return false
	}
}

func (pq *ProcessingQueue) Size() int {
	return len(pq.items)
}

func (pq *ProcessingQueue) Capacity() int {
	return cap(pq.items)
}

func (pq *ProcessingQueue) IsRunning() bool {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()
	return pq.isRunning
}

// Shutdown stops the workers and fails whatever is still queued.
func (pq *ProcessingQueue) Shutdown(timeout time.Duration) error {
	pq.mutex.Lock()
	if !pq.isRunning {
		pq.mutex.Unlock()
		return nil
	}
	pq.isRunning = false
	pq.mutex.Unlock()

	close(pq.shutdown)

	done := make(chan struct{})
	go func() {
		pq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		pq.DrainQueue()
		return nil
	case <-time.After(timeout):
		pq.DrainQueue()
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (pq *ProcessingQueue) DrainQueue() int {
	drained := 0

	for {
		select {
		case item := <-pq.items:
			if item != nil {
				item.reply(&ProcessingResult{
					Error: fmt.Errorf("processing cancelled - queue shutting down"),
				})
				drained++
			}
		default:
			return drained
		}
	}
}

func (pq *ProcessingQueue) GetQueueStats() QueueStats {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	return QueueStats{
		CurrentSize:        pq.Size(),
		MaxCapacity:        pq.Capacity(),
		ActiveWorkers:      pq.workers,
		IsRunning:          pq.isRunning,
		UtilizationPercent: float64(pq.Size()) / float64(pq.Capacity()) * 100,
	}
}

type QueueStats struct {
	CurrentSize        int     `json:"current_size"`
	MaxCapacity        int     `json:"max_capacity"`
	ActiveWorkers      int     `json:"active_workers"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
}
