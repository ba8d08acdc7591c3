package decoder

import (
	"context"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/metrics"
	"github.com/zsiec/playout/internal/state"
)

// Worker runs a Loop repeatedly, sleeping on the decode readiness flags
// whenever the loop pauses for backpressure.
type Worker struct {
	loop   *Loop
	state  *state.State
	logger logger.Logger
}

// NewWorker creates a decode worker
func NewWorker(loop *Loop, st *state.State, log logger.Logger) *Worker {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Worker{
		loop:   loop,
		state:  st,
		logger: logger.WithComponent(log, "decode_worker"),
	}
}

// Run blocks until the stream ends, the decoder fails or ctx is done. End
// of stream is reported as an ENDED error.
func (w *Worker) Run(ctx context.Context) error {
	metrics.IncrementGoroutineCreated("decode_worker")
	defer metrics.IncrementGoroutineDestroyed("decode_worker")

	w.logger.Debug("Decode worker started")
	for {
		err := w.loop.Run(ctx)
		if err != nil {
			if errors.IsEnded(err) {
				w.logger.Info("Decode worker finished")
			} else if ctx.Err() == nil {
				w.logger.WithError(err).Error("Decode worker stopped")
			}
			return err
		}

		if err := w.state.VideoDecodeReady.WaitUntilTrue(ctx); err != nil {
			return err
		}
		if err := w.state.AudioDecodeReady.WaitUntilTrue(ctx); err != nil {
			return err
		}
	}
}
