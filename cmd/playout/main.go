package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/playout/internal/config"
	"github.com/zsiec/playout/internal/logger"
	"github.com/zsiec/playout/internal/media"
	"github.com/zsiec/playout/internal/player"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/internal/server"
	"github.com/zsiec/playout/internal/source"
	"github.com/zsiec/playout/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logrusLogger, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewAdapter(logrusLogger)

	log.WithField("version", version.GetInfo().Short()).Info("Starting playout")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	src, err := newSource(&cfg.Playback, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create source")
	}

	p, err := player.New(&cfg.Playback, src, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create player")
	}
	p.SetActiveLayers(src.LayerIDs()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	// the servers outlive playback until a signal arrives
	playCtx, stopPlayback := context.WithCancel(ctx)
	defer stopPlayback()

	g.Go(func() error {
		err := play(playCtx, p, playbackOptions(cfg, log), log)
		if err == nil {
			log.WithField("status", p.Status()).Info("Playback complete")
		}
		return err
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics, log)
		})
	}

	if cfg.Server.Enabled {
		metricsPath := cfg.Metrics.Path
		if cfg.Metrics.Enabled {
			metricsPath = ""
		}
		srv := server.New(&cfg.Server, p, metricsPath, log)
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("Playout error")
	}
	if st := p.Status(); st.Error != "" {
		log.WithField("error", st.Error).Fatal("Playout stopped after a decode error")
	}
	log.Info("Playout shutdown complete")
}

// play decodes and consumes until the queued content is drained. A decode
// failure ends decoding only: playback still drains what is queued and the
// error stays visible through Status and the health checks.
func play(ctx context.Context, p *player.Player, opts player.PlaybackOptions, log logger.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Decoding stopped")
		}
		return nil
	})

	g.Go(func() error {
		err := p.Playback(ctx, opts)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// newSource builds the synthetic test pattern described by the playback
// config
func newSource(cfg *config.PlaybackConfig, log logger.Logger) (*source.TestPattern, error) {
	method, err := media.ParseDecodeMethod(cfg.DecodeMethod)
	if err != nil {
		return nil, err
	}
	sc := cfg.Source
	return source.NewTestPattern(source.Options{
		Layers:    sc.Layers,
		Video:     cfg.Video.Enabled,
		Audio:     cfg.Audio.Enabled,
		FrameRate: rational.New(sc.FrameRateNum, sc.FrameRateDen),
		Geometry: media.Geometry{
			Width:  sc.Width,
			Height: sc.Height,
			Format: media.PixelFormatI420,
		},
		DecodeMethod: method,
		AudioSpec: media.AudioSpec{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
		},
		UnitSamples: sc.AudioUnitSamples,
		ToneHz:      sc.ToneHz,
		Duration:    rational.FromDuration(sc.Duration),
	}, log), nil
}

// playbackOptions paces playback in real time and logs what a renderer
// or encoder would consume
func playbackOptions(cfg *config.Config, log logger.Logger) player.PlaybackOptions {
	log = logger.WithComponent(log, "output")
	return player.PlaybackOptions{
		FrameRate:       rational.New(cfg.Playback.Source.FrameRateNum, cfg.Playback.Source.FrameRateDen),
		CallbackSamples: cfg.Playback.Audio.CallbackSamples,
		Realtime:        true,
		OnFrames: func(pts rational.Rational, frames map[string]*media.Unit) {
			log.WithFields(map[string]interface{}{
				"pts":    pts.String(),
				"layers": len(frames),
			}).Debug("Frames presented")
		},
		OnAudio: func(pts rational.Rational, data []byte) {
			log.WithFields(map[string]interface{}{
				"pts":   pts.String(),
				"bytes": len(data),
			}).Debug("Audio rendered")
		},
		OnAudioUnit: func(u *media.Unit, offset int) {
			log.WithFields(map[string]interface{}{
				"layer_id": u.LayerID,
				"pts":      u.PTS.String(),
				"offset":   offset,
			}).Debug("Audio unit encoded")
		},
	}
}

// serveMetrics runs the Prometheus endpoint on its own port
func serveMetrics(ctx context.Context, cfg config.MetricsConfig, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", srv.Addr).Info("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
