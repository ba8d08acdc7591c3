package state

import (
	"sort"
	"sync"

	"github.com/zsiec/playout/internal/media"
)

// Properties are the limits and formats the queues read at decision time
type Properties struct {
	VideoMaxQueueSize  int64
	VideoMaxQueueCount int
	AudioMaxQueueSize  int64
	AudioMaxBufferSize int
	AudioSpec          media.AudioSpec
	DecodeMethod       media.DecodeMethod
}

// State is shared between the decode side and the playback side. The two
// readiness flags are the only backpressure signal between them.
type State struct {
	VideoDecodeReady Flag
	AudioDecodeReady Flag

	propMu sync.RWMutex
	props  Properties

	layerMu      sync.RWMutex
	activeLayers map[string]struct{}
}

// New creates shared state with both decode gates open
func New(props Properties) *State {
	return &State{
		VideoDecodeReady: NewFlag(true),
		AudioDecodeReady: NewFlag(true),
		props:            props,
		activeLayers:     make(map[string]struct{}),
	}
}

// Props returns a copy of the current properties
func (s *State) Props() Properties {
	s.propMu.RLock()
	defer s.propMu.RUnlock()
	return s.props
}

// UpdateProps mutates properties under the property lock
func (s *State) UpdateProps(fn func(p *Properties)) {
	s.propMu.Lock()
	fn(&s.props)
	s.propMu.Unlock()
}

// SetActiveLayers replaces the render profile's active layer set
func (s *State) SetActiveLayers(ids ...string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.layerMu.Lock()
	s.activeLayers = set
	s.layerMu.Unlock()
}

// AddActiveLayer adds one layer to the active set
func (s *State) AddActiveLayer(id string) {
	s.layerMu.Lock()
	s.activeLayers[id] = struct{}{}
	s.layerMu.Unlock()
}

// ActiveLayers returns the active layer ids in sorted order
func (s *State) ActiveLayers() []string {
	s.layerMu.RLock()
	defer s.layerMu.RUnlock()
	ids := make([]string, 0, len(s.activeLayers))
	for id := range s.activeLayers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsActive reports whether a layer is part of the render profile
func (s *State) IsActive(id string) bool {
	s.layerMu.RLock()
	defer s.layerMu.RUnlock()
	_, ok := s.activeLayers[id]
	return ok
}
