package audio

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/internal/state"
)

// queueEntry is the FIFO of one layer. offset is the byte position inside
// the head unit where playback resumes after a seek.
type queueEntry struct {
	units      []*media.Unit
	offset     int
	processing bool
}

// Queue holds decoded audio units per layer for unit-by-unit consumers.
// Every mutation publishes NotFull into the shared AudioDecodeReady flag.
//
// The layer map is not locked; callers confine mutation to one goroutine
// or serialize it themselves. Size is safe to read from anywhere.
type Queue struct {
	layers map[string]*queueEntry
	size   atomic.Int64
	state  *state.State

	logger logger.Logger
}

// NewQueue creates an empty audio queue
func NewQueue(st *state.State, log logger.Logger) *Queue {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Queue{
		layers: make(map[string]*queueEntry),
		state:  st,
		logger: logger.WithComponent(log, "audio_queue"),
	}
}

// entry returns the layer entry, creating it on first use
func (q *Queue) entry(layerID string) *queueEntry {
	e, ok := q.layers[layerID]
	if !ok {
		e = &queueEntry{}
		q.layers[layerID] = e
	}
	return e
}

// Enqueue appends a unit to the tail of its layer
func (q *Queue) Enqueue(u *media.Unit) error {
	if u.Kind != media.KindAudio {
		return errors.NewValidationError(fmt.Sprintf("audio queue got %s unit", u.Kind))
	}
	e := q.entry(u.LayerID)
	e.units = append(e.units, u)
	q.size.Add(int64(u.Size))
	q.publish()
	return nil
}

// Front returns the head unit of a layer without removing it
func (q *Queue) Front(layerID string) *media.Unit {
	e, ok := q.layers[layerID]
	if !ok || len(e.units) == 0 {
		return nil
	}
	return e.units[0]
}

// PopFront removes the head unit of a layer. offset is the number of bytes
// of each plane already covered by a seek and should be skipped.
func (q *Queue) PopFront(layerID string) (*media.Unit, int, bool) {
	e, ok := q.layers[layerID]
	if !ok || len(e.units) == 0 {
		return nil, 0, false
	}
	u := e.units[0]
	e.units[0] = nil
	e.units = e.units[1:]
	offset := e.offset
	e.offset = 0
	e.processing = false

	q.size.Add(-int64(u.Size))
	q.publish()
	return u, offset, true
}

// Seek discards leading units of every active layer that end at or before
// pts and records the byte offset into the first unit that straddles it.
// It reports success when at least one layer has a unit to resume from.
func (q *Queue) Seek(pts rational.Rational) bool {
	found := false
	for _, id := range q.state.ActiveLayers() {
		e, ok := q.layers[id]
		if !ok {
			continue
		}

		e.offset = 0
		e.processing = false
		for len(e.units) > 0 && e.units[0].End().LessEq(pts) {
			q.size.Add(-int64(e.units[0].Size))
			e.units[0] = nil
			e.units = e.units[1:]
		}
		if len(e.units) == 0 {
			continue
		}

		head := e.units[0]
		if head.PTS.Less(pts) {
			samples := pts.Sub(head.PTS).MulInt(int64(head.Audio.SampleRate)).Floor()
			e.offset = int(samples) * frameBytes(head)
			e.processing = e.offset > 0
		}
		found = true

		q.logger.WithFields(map[string]interface{}{
			"layer_id": id,
			"pts":      pts.String(),
			"head_pts": head.PTS.String(),
			"offset":   e.offset,
		}).Debug("Audio layer seeked")
	}

	metrics.IncrementSeek("audio", found)
	q.publish()
	return found
}

// frameBytes is the size of one sample instant within a single plane.
// Interleaved units carry every channel in their one plane.
func frameBytes(u *media.Unit) int {
	n := u.Audio.Format.BytesPerSample()
	if !u.Audio.Format.IsPlanar() {
		n *= u.Audio.Channels
	}
	return n
}

// Offset returns the resume offset of a layer and whether its head unit
// is partially consumed
func (q *Queue) Offset(layerID string) (int, bool) {
	e, ok := q.layers[layerID]
	if !ok {
		return 0, false
	}
	return e.offset, e.processing
}

// Clear drains every layer. With notify set the decode gate is forced open.
func (q *Queue) Clear(notify bool) {
	q.layers = make(map[string]*queueEntry)
	q.size.Store(0)
	q.finishClear(notify)
}

// ClearByID drains a single layer
func (q *Queue) ClearByID(layerID string, notify bool) {
	e, ok := q.layers[layerID]
	if ok {
		for _, u := range e.units {
			q.size.Add(-int64(u.Size))
		}
		delete(q.layers, layerID)
	}
	q.finishClear(notify)
}

func (q *Queue) finishClear(notify bool) {
	if notify {
		q.state.AudioDecodeReady.Set(true, true)
		metrics.SetDecodeReady("audio", true)
		metrics.SetQueueState("audio", q.size.Load(), int64(q.count()))
		return
	}
	q.publish()
}

// NotFull reports whether queued bytes are under the configured limit
func (q *Queue) NotFull() bool {
	limit := q.state.Props().AudioMaxQueueSize
	return limit <= 0 || q.size.Load() < limit
}

// WriteReady reports whether the decoder may produce more audio
func (q *Queue) WriteReady() bool {
	return q.NotFull()
}

// Size returns the queued payload bytes across layers
func (q *Queue) Size() int64 {
	return q.size.Load()
}

// Len returns the number of units queued for a layer
func (q *Queue) Len(layerID string) int {
	if e, ok := q.layers[layerID]; ok {
		return len(e.units)
	}
	return 0
}

// Layers returns the ids of layers with an entry, sorted
func (q *Queue) Layers() []string {
	ids := make([]string, 0, len(q.layers))
	for id := range q.layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (q *Queue) count() int {
	n := 0
	for _, e := range q.layers {
		n += len(e.units)
	}
	return n
}

func (q *Queue) publish() {
	ready := q.NotFull()
	q.state.AudioDecodeReady.Set(ready, false)
	metrics.SetDecodeReady("audio", ready)
	metrics.SetQueueState("audio", q.size.Load(), int64(q.count()))
}
