package health

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zsiec/playout/internal/player"
)

// StatusSource provides player snapshots to the checkers
type StatusSource interface {
	Status() player.Status
}

// DecoderChecker is down once the decoder has stopped with an error
type DecoderChecker struct {
	src StatusSource
}

// NewDecoderChecker creates a decoder failure checker
func NewDecoderChecker(src StatusSource) *DecoderChecker {
	return &DecoderChecker{src: src}
}

func (c *DecoderChecker) Name() string { return "decoder" }

func (c *DecoderChecker) Check(ctx context.Context) error {
	st := c.src.Status()
	if st.Error != "" {
		return fmt.Errorf("decoder stopped: %s", st.Error)
	}
	return nil
}

// StallChecker is degraded when the decoder is held back by backpressure
// and the consumer has taken nothing since the previous check
type StallChecker struct {
	src StatusSource

	mu      sync.Mutex
	checked bool
	frames  int64
	audio   int64
}

// NewStallChecker creates a playback stall checker
func NewStallChecker(src StatusSource) *StallChecker {
	return &StallChecker{src: src}
}

func (c *StallChecker) Name() string { return "playback" }

func (c *StallChecker) Check(ctx context.Context) error {
	st := c.src.Status()

	c.mu.Lock()
	defer c.mu.Unlock()

	idle := c.checked && st.FramesDelivered == c.frames && st.AudioBytesRead == c.audio
	c.checked = true
	c.frames = st.FramesDelivered
	c.audio = st.AudioBytesRead

	blocked := !st.VideoDecodeReady || !st.AudioDecodeReady
	if idle && blocked && !st.Ended {
		return &DegradedError{Reason: "decoder is blocked and playback is not consuming"}
	}
	return nil
}

// IsDegraded reports whether err marks a degraded component
func IsDegraded(err error) bool {
	var d *DegradedError
	return errors.As(err, &d)
}
