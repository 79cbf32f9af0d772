package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spectro/cmd"
	"spectro/internal/analysis"
	"spectro/internal/audio"
	"spectro/internal/config"
	"spectro/internal/live"
	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/playback"
	"spectro/internal/source"
	"spectro/internal/spectrogram"
	"spectro/internal/transport"
	"spectro/internal/transport/udp"
	"spectro/internal/tui"
	"spectro/pkg/build"

	"golang.org/x/sync/errgroup"
)

// drainPollInterval is how often a headless file run checks that the audio
// device has taken the last samples before exiting.
const drainPollInterval = 10 * time.Millisecond

// main is the entry point for the spectrogram application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the producer (live capture consumer or file player)
//   - Start the render sinks (terminal, websocket, UDP) and metrics
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or the user quitting the terminal view
//   - Stop the producer, close streams and save any recording
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v, using development defaults", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.Command == "" {
		return nil
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			log.Errorf("%v", err)
		}
	}()

	if cfg.Command == cmd.CommandList {
		return listDevices(cfg)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		info := build.GetBuildFlags()
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    info.Name,
			ServiceVersion: info.Version,
		})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warnf("Metrics: shutdown: %v", err)
			}
		}()
	}

	transform, err := newTransformer(cfg)
	if err != nil {
		return err
	}
	buffer := spectrogram.New(cfg.Spectrogram.History, transform.Bins())

	g, gctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		stop()
		_ = g.Wait()
		return err
	}

	if cfg.Metrics.Enabled {
		g.Go(func() error { return observe.Serve(gctx, cfg.Metrics.Address) })
	}

	var (
		title    string
		progress tui.ProgressSource
	)
	switch cfg.Command {
	case cmd.CommandLive:
		engine, err := startLive(gctx, g, cfg, transform, buffer)
		if err != nil {
			return abort(err)
		}
		defer closeEngine(cfg, engine)
		title = "Live input"

	case cmd.CommandPlay:
		player, err := startPlayback(gctx, g, cfg, transform, buffer, stop)
		if err != nil {
			return abort(err)
		}
		defer player.Stop()
		title = cfg.TrackPath
		progress = player
	}

	if err := startSinks(gctx, g, cfg, buffer); err != nil {
		return abort(err)
	}

	if cfg.Render.Mode != config.RenderModeNone {
		model := tui.NewSpectrogramModel(buffer, transform, tui.Options{
			Title:         title,
			Mode:          cfg.Render.Mode,
			MaxFrequency:  cfg.Render.MaxFrequency,
			RenderEvery:   cfg.Render.Interval,
			ProgressEvery: cfg.Render.ProgressInterval,
			ProgressScale: cfg.Render.ProgressScale,
			Progress:      progress,
		})
		g.Go(func() error {
			defer stop()
			return tui.RunSpectrogram(gctx, model)
		})
	} else {
		log.Infof("Running headless, press Ctrl+C to stop")
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Debugf("Shutting down")
	return nil
}

// setupLogging applies the log level and moves log output off the
// terminal while the full screen view owns it.
func setupLogging(cfg *config.Config) (func(), error) {
	log.SetLevel(cfg.EffectiveLogLevel())

	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		return func() { f.Close() }, nil
	case cfg.Command != cmd.CommandList && cfg.Render.Mode != config.RenderModeNone:
		log.SetOutput(io.Discard)
	}
	return func() {}, nil
}

// listDevices handles the list command.
func listDevices(cfg *config.Config) error {
	if !cfg.ListTUI {
		return audio.ListDevices(os.Stdout)
	}

	model, err := tui.StartDeviceListUI()
	if err != nil {
		return err
	}
	if device, rate, ok := model.Selection(); ok {
		fmt.Printf("Selected %q: --device %d --sample-rate %.0f\n", device.Name, device.ID, rate)
	}
	return nil
}

func newTransformer(cfg *config.Config) (*analysis.Transformer, error) {
	window, err := analysis.ParseWindowFunc(cfg.Audio.FFTWindow)
	if err != nil {
		return nil, err
	}
	normalization, err := analysis.ParseNormalization(cfg.Spectrogram.Normalization)
	if err != nil {
		return nil, err
	}
	return analysis.NewTransformer(analysis.Options{
		BlockSize:     cfg.Audio.BlockSize,
		FFTSize:       cfg.Spectrogram.FFTSize,
		SampleRate:    cfg.Audio.SampleRate,
		Window:        window,
		Normalization: normalization,
		Reference:     cfg.Spectrogram.Reference,
		Epsilon:       cfg.Spectrogram.Epsilon,
	})
}

// startLive opens the capture stream and runs the consumer in g.
func startLive(ctx context.Context, g *errgroup.Group, cfg *config.Config, transform *analysis.Transformer, buffer *spectrogram.Buffer) (*audio.Engine, error) {
	mailbox := source.NewMailbox(cfg.Audio.BlockSize)

	engine, err := audio.NewEngine(cfg, mailbox)
	if err != nil {
		return nil, err
	}

	// The first call to StartInputStream makes PortAudio begin calling the
	// capture callback.
	if err := engine.StartInputStream(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	if cfg.Recording.Enabled {
		cfg.Recording.OutputFile = cfg.RecordingFile(time.Now())
		if err := engine.StartRecording(cfg.Recording.OutputFile); err != nil {
			engine.Close()
			return nil, fmt.Errorf("start recording: %w", err)
		}
	}

	consumer := live.NewConsumer(mailbox, transform, buffer,
		live.WithInterval(playback.BlockDuration(cfg.Audio.BlockSize, cfg.Audio.SampleRate)/4),
		live.WithStatus(func() live.Status {
			s := engine.Status()
			return live.Status{
				InputOverflow:   s.InputOverflow,
				InputUnderflow:  s.InputUnderflow,
				OutputOverflow:  s.OutputOverflow,
				OutputUnderflow: s.OutputUnderflow,
			}
		}),
	)
	g.Go(func() error { return consumer.Run(ctx) })
	return engine, nil
}

func closeEngine(cfg *config.Config, engine *audio.Engine) {
	recording := engine.IsRecording()
	if err := engine.Close(); err != nil {
		log.Errorf("Error closing audio engine: %v", err)
		return
	}
	if recording {
		fmt.Printf("\nRecording saved to: %s\n", cfg.Recording.OutputFile)
	}
}

// startPlayback loads the track and, when there is no terminal view to
// quit from, stops the process once it has played.
func startPlayback(ctx context.Context, g *errgroup.Group, cfg *config.Config, transform *analysis.Transformer, buffer *spectrogram.Buffer, done func()) (*playback.Player, error) {
	var opts []playback.Option
	if !cfg.Audio.Mute {
		opts = append(opts, playback.WithOutput(
			audio.NewTrackOutput(cfg.Audio.OutputDevice, cfg.Audio.BlockSize, cfg.Audio.LowLatency)))
	}
	player := playback.NewPlayer(transform, buffer, cfg.Audio.BlockSize, cfg.Audio.SampleRate, opts...)

	if err := player.Load(ctx, cfg.TrackPath); err != nil {
		return nil, err
	}

	if cfg.Render.Mode == config.RenderModeNone {
		g.Go(func() error {
			defer done()
			if err := player.Wait(ctx); err != nil {
				return err
			}
			return player.WaitDrained(ctx, drainPollInterval)
		})
	}
	return player, nil
}

// startSinks starts the network sinks, or a logging sink when the run is
// headless with nothing else to show.
func startSinks(ctx context.Context, g *errgroup.Group, cfg *config.Config, buffer *spectrogram.Buffer) error {
	t := cfg.Transport

	if t.WebSocketEnabled {
		wst := transport.NewWebSocketTransport(t.WebSocketAddress, nil)
		if err := wst.Start(); err != nil {
			return err
		}
		b := transport.NewBroadcaster(buffer, wst, t.WebSocketInterval)
		g.Go(func() error { return b.Run(ctx) })
	}

	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			return err
		}
		publisher, err := udp.NewUDPPublisher(t.UDPSendInterval, sender, buffer, nil)
		if err != nil {
			sender.Close()
			return err
		}
		g.Go(func() error {
			defer sender.Close()
			return publisher.Run(ctx)
		})
	}

	if cfg.Render.Mode == config.RenderModeNone && !t.WebSocketEnabled && !t.UDPEnabled {
		b := transport.NewBroadcaster(buffer, transport.NewLoggingTransport(), time.Second)
		g.Go(func() error { return b.Run(ctx) })
	}
	return nil
}
