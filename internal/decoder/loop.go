package decoder

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/metrics"
)

// Loop pulls from a decoder while both sinks have room and routes each
// unit by media kind. A nil sink means that output is not configured and
// its units are dropped.
type Loop struct {
	decoder Decoder
	video   VideoSink
	audio   AudioSink

	logLimiter *rate.Limiter
	logger     logger.Logger
}

// NewLoop creates a decode loop
func NewLoop(dec Decoder, video VideoSink, audio AudioSink, log logger.Logger) *Loop {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Loop{
		decoder:    dec,
		video:      video,
		audio:      audio,
		logLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		logger:     logger.WithComponent(log, "decode_loop"),
	}
}

// Run decodes until a sink reports it is full, the stream ends or the
// decoder fails. It returns nil when paused by backpressure, an ENDED
// error at end of stream, and a decode or internal error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.ready() {
			return nil
		}

		res, unit, layerID := l.decoder.Decode(ctx)
		metrics.IncrementDecodeResult(res.String())

		switch {
		case res == ResultOK:
			if err := l.route(unit, layerID); err != nil {
				return err
			}
		case res == ResultEOS:
			l.logger.WithField("layer_id", layerID).Info("Decoder reached end of stream")
			return errors.NewEndedError("end of stream").WithDetails(map[string]interface{}{
				"layer_id": layerID,
			})
		case res == ResultError:
			l.logger.WithField("layer_id", layerID).Error("Decoder failed")
			return errors.NewDecodeError("decoder failed").WithDetails(map[string]interface{}{
				"layer_id": layerID,
			})
		case res.Transient():
			if l.logLimiter.Allow() {
				l.logger.WithFields(map[string]interface{}{
					"layer_id": layerID,
					"result":   res.String(),
				}).Debug("Transient decoder result")
			}
		default:
			l.logger.WithFields(map[string]interface{}{
				"layer_id": layerID,
				"result":   int(res),
			}).Error("Unrecognized decoder result")
			return errors.NewDecodeError("unrecognized decoder result").WithDetails(map[string]interface{}{
				"layer_id": layerID,
				"result":   int(res),
			})
		}
	}
}

func (l *Loop) ready() bool {
	if l.video != nil && !l.video.Ready() {
		return false
	}
	if l.audio != nil && !l.audio.WriteReady() {
		return false
	}
	return true
}

func (l *Loop) route(u *media.Unit, layerID string) error {
	if u == nil {
		l.logger.WithField("layer_id", layerID).Warn("Decoder returned ok without a unit")
		return nil
	}

	if err := u.Validate(); err != nil {
		l.logger.WithError(err).WithField("layer_id", layerID).Error("Decoder produced a malformed unit")
		return errors.Wrap(err, errors.ErrorTypeDecode, "malformed unit", http.StatusInternalServerError).
			WithDetails(map[string]interface{}{"layer_id": layerID})
	}

	var err error
	switch u.Kind {
	case media.KindVideo:
		if l.video == nil {
			return nil
		}
		err = l.video.Enqueue(u)
	case media.KindAudio:
		if l.audio == nil {
			return nil
		}
		err = l.audio.Enqueue(u)
	default:
		return errors.NewInternalError("unit of unknown kind").WithDetails(map[string]interface{}{
			"layer_id": u.LayerID,
		})
	}

	if err == nil {
		return nil
	}
	// a full audio buffer keeps the unit as its back-buffer; the next
	// readiness check pauses the loop
	if errors.IsOutOfRange(err) {
		return nil
	}
	l.logger.WithError(err).WithFields(map[string]interface{}{
		"layer_id": u.LayerID,
		"pts":      u.PTS.String(),
		"kind":     u.Kind.String(),
	}).Error("Failed to enqueue decoded unit")
	if errors.IsAppError(err) {
		return err
	}
	return errors.WrapInternalError(err, "enqueue failed")
}
