package video

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/internal/state"
)

var (
	// DropThreshold is the head-minus-target PTS below which a frame is stale
	DropThreshold = rational.Zero
	// SkipThreshold is the head-minus-target PTS above which a frame is early
	SkipThreshold = rational.New(1, 100)
)

// Queue holds decoded video frames per layer and paces them against the
// presentation clock on dequeue. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	layers map[string][]*media.Unit

	// pubMu keeps readiness publications in the order their counts were
	// computed; mu is released before the flag is signalled
	pubMu sync.Mutex

	size  atomic.Int64
	count atomic.Int64

	state       *state.State
	dropLimiter *rate.Limiter
	logger      logger.Logger
}

// NewQueue creates an empty video queue
func NewQueue(st *state.State, log logger.Logger) *Queue {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Queue{
		layers:      make(map[string][]*media.Unit),
		state:       st,
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:      logger.WithComponent(log, "video_queue"),
	}
}

// Enqueue appends a frame to the tail of its layer
func (q *Queue) Enqueue(u *media.Unit) error {
	if u.Kind != media.KindVideo {
		return errors.NewValidationError(fmt.Sprintf("video queue got %s unit", u.Kind))
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	q.mu.Lock()
	q.layers[u.LayerID] = append(q.layers[u.LayerID], u)
	q.size.Add(int64(u.Size))
	q.count.Add(1)
	q.mu.Unlock()

	q.publish()
	return nil
}

// Dequeue returns the frame of a layer to show at pts. Frames behind pts
// are dropped; nil is returned when the head is too early or the layer
// is empty.
func (q *Queue) Dequeue(layerID string, pts rational.Rational) *media.Unit {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	var (
		out     *media.Unit
		dropped int
		lastPTS rational.Rational
		early   bool
	)

	q.mu.Lock()
	units := q.layers[layerID]
	for len(units) > 0 {
		head := units[0]
		diff := head.PTS.Sub(pts)

		if diff.Less(DropThreshold) {
			units = q.popLocked(layerID, units)
			dropped++
			lastPTS = head.PTS
			continue
		}
		if SkipThreshold.Less(diff) {
			early = true
			break
		}

		units = q.popLocked(layerID, units)
		out = head
		metrics.ObserveVideoDrift(diff.Float64())
		break
	}
	q.mu.Unlock()

	if dropped > 0 || out != nil {
		q.publish()
	}

	for i := 0; i < dropped; i++ {
		metrics.IncrementVideoFrames("dropped")
	}
	if dropped > 0 && q.dropLimiter.Allow() {
		q.logger.WithFields(map[string]interface{}{
			"layer_id": layerID,
			"pts":      pts.String(),
			"last_pts": lastPTS.String(),
			"dropped":  dropped,
		}).Warn("Dropped late video frames")
	}
	switch {
	case out != nil:
		metrics.IncrementVideoFrames("delivered")
	case early:
		metrics.IncrementVideoFrames("early")
	}
	return out
}

// popLocked removes the head of a layer. Caller holds mu.
func (q *Queue) popLocked(layerID string, units []*media.Unit) []*media.Unit {
	head := units[0]
	units[0] = nil
	units = units[1:]
	q.layers[layerID] = units
	q.size.Add(-int64(head.Size))
	q.count.Add(-1)
	return units
}

// Seek discards leading frames of every active layer that lie before pts.
// A frame with a duration is kept while it still covers pts. It reports
// success when at least one layer has a frame left.
func (q *Queue) Seek(pts rational.Rational) bool {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	found := false
	q.mu.Lock()
	for _, id := range q.state.ActiveLayers() {
		units, ok := q.layers[id]
		if !ok {
			continue
		}
		for len(units) > 0 && before(units[0], pts) {
			units = q.popLocked(id, units)
		}
		if len(units) > 0 {
			found = true
		}
	}
	q.mu.Unlock()

	metrics.IncrementSeek("video", found)
	q.publish()
	return found
}

func before(u *media.Unit, pts rational.Rational) bool {
	if u.Duration.Sign() > 0 {
		return u.End().LessEq(pts)
	}
	return u.PTS.Less(pts)
}

// Clear drains every layer. With notify set the decode gate is forced open.
func (q *Queue) Clear(notify bool) {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	q.mu.Lock()
	q.layers = make(map[string][]*media.Unit)
	q.size.Store(0)
	q.count.Store(0)
	q.mu.Unlock()

	q.finishClear(notify)
}

// ClearByID drains a single layer
func (q *Queue) ClearByID(layerID string, notify bool) {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	q.mu.Lock()
	for _, u := range q.layers[layerID] {
		q.size.Add(-int64(u.Size))
		q.count.Add(-1)
	}
	delete(q.layers, layerID)
	q.mu.Unlock()

	q.finishClear(notify)
}

func (q *Queue) finishClear(notify bool) {
	if notify {
		q.state.VideoDecodeReady.Set(true, true)
		metrics.SetDecodeReady("video", true)
		metrics.SetQueueState("video", q.size.Load(), q.count.Load())
		return
	}
	q.publish()
}

// Ready reports whether the decoder may produce more video. Hardware
// surfaces come from a fixed pool so they are bounded by count, software
// frames by bytes.
func (q *Queue) Ready() bool {
	props := q.state.Props()
	if props.DecodeMethod == media.DecodeHardware {
		return props.VideoMaxQueueCount <= 0 || q.count.Load() < int64(props.VideoMaxQueueCount)
	}
	return props.VideoMaxQueueSize <= 0 || q.size.Load() < props.VideoMaxQueueSize
}

// Size returns the queued payload bytes across layers
func (q *Queue) Size() int64 {
	return q.size.Load()
}

// Count returns the number of queued frames across layers
func (q *Queue) Count() int64 {
	return q.count.Load()
}

// Len returns the number of frames queued for a layer
func (q *Queue) Len(layerID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.layers[layerID])
}

// Front returns the head frame of a layer without removing it
func (q *Queue) Front(layerID string) *media.Unit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if units := q.layers[layerID]; len(units) > 0 {
		return units[0]
	}
	return nil
}

// publish writes readiness into shared state. Caller holds pubMu.
func (q *Queue) publish() {
	ready := q.Ready()
	q.state.VideoDecodeReady.Set(ready, false)
	metrics.SetDecodeReady("video", ready)
	metrics.SetQueueState("video", q.size.Load(), q.count.Load())
}
