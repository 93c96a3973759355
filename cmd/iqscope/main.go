package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"iq-scope/internal/broadcast"
	"iq-scope/internal/bus"
	"iq-scope/internal/config"
	"iq-scope/internal/engine"
	"iq-scope/internal/ingest"
	csvlogger "iq-scope/internal/logger"
	"iq-scope/internal/model"
	"iq-scope/internal/recorder"
	"iq-scope/internal/state"
	"iq-scope/internal/worker"
)

const (
	frameQueue   = 256 // published frames waiting for the dispatcher
	commandQueue = 64
)

var (
	configPath string
	addr       string
	simulate   bool
	sourceURL  string
	record     bool
	logDir     string
	rate       quantity
	batch      quantity
)

var rootCmd = &cobra.Command{
	Use:   "iqscope",
	Short: "Triggered capture and trace extraction for IQ sample streams",
	Long: `iqscope ingests complex IQ samples from one or more sources, waits for
a configurable chain of trigger conditions and publishes windows of
projected traces (real, imag, magnitude, dB, phase, instantaneous
frequency) to WebSocket renderers.

Producers:
  --sim        built-in tone generator with periodic bursts
  --url        upstream WebSocket feeding msgpack IQ batches`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cfg)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address for the renderer server")
	rootCmd.Flags().BoolVar(&simulate, "sim", false, "use the synthetic producer")
	rootCmd.Flags().StringVar(&sourceURL, "url", "", "upstream WebSocket producer URL")
	rootCmd.Flags().BoolVar(&record, "record", false, "export every capture as parquet")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for the capture CSV log")
	rootCmd.Flags().Var(&rate, "rate", "sample rate in Hz, SI suffixes allowed (48k, 2.4M)")
	rootCmd.Flags().Var(&batch, "batch", "synthetic samples per batch, SI suffixes allowed")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("url") {
		cfg.Producer.Mode = config.ModeWebsocket
		cfg.Producer.URL = sourceURL
	}
	if simulate {
		cfg.Producer.Mode = config.ModeSynthetic
	}
	if record {
		cfg.Recorder.Enabled = true
	}
	if flags.Changed("log-dir") {
		cfg.Log.Dir = logDir
	}
	if flags.Changed("rate") {
		cfg.Producer.SampleRate = float64(rate)
	}
	if flags.Changed("batch") {
		cfg.Producer.BatchSize = int(batch)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("Starting iqscope (%d sources, %s producer)...", cfg.Engine.Sources, cfg.Producer.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Sample Bus
	sampleBus := bus.NewBus()
	batches := sampleBus.Subscribe(max(cfg.Producer.Queue, 1))

	// 2. Engine (publishes into frameCh, never blocks the worker)
	frameCh := make(chan model.Frame, frameQueue)
	eng := engine.New(engine.Options{
		Settings:    cfg.Engine.Settings(),
		MemoryDepth: cfg.Engine.MemoryDepth,
		OnPublish: func(f model.Frame) {
			select {
			case frameCh <- f:
			default:
			}
		},
	})

	// 3. Resume numbering after the last logged capture
	if seq := state.LastSequence(cfg.Log.Dir); seq > 0 {
		eng.SetSeq(seq)
		log.Printf("Resuming capture sequence after %d", seq)
	}

	// 4. Worker goroutine — single owner of Feed and edits
	w := worker.New(eng, batches, commandQueue)
	go w.Run(ctx)

	cmds, err := cfg.Commands()
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if err := w.Do(ctx, c); err != nil {
			return fmt.Errorf("apply %T: %w", c, err)
		}
	}

	// 5. Capture Logger + optional parquet Recorder
	capLogger := csvlogger.NewLogger(cfg.Log.Dir)
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		if rec, err = recorder.New(cfg.Recorder.Dir, cfg.Recorder.Queue); err != nil {
			return err
		}
		log.Printf("Recording captures to %s", cfg.Recorder.Dir)
	}

	// 6. Frame Ring (history for new clients)
	frameBuffer := state.NewFrameRing(cfg.Server.HistoryFrames)

	// 7. Dispatcher
	liveCh := make(chan model.Frame, frameQueue)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for f := range frameCh {
			frameBuffer.Add(f)

			select {
			case liveCh <- f:
			default:
			}

			capLogger.Log(csvlogger.BuildLogRow(&f))
			if rec != nil {
				rec.Record(f)
			}
		}
	}()

	// 8. Broadcaster
	control := func(ctx context.Context, msg []byte) error {
		cmd, err := config.DecodeControl(msg)
		if err != nil {
			return err
		}
		return w.Do(ctx, cmd)
	}
	status := func() any { return eng.Status() }
	broadcaster := broadcast.NewBroadcaster(liveCh, frameBuffer, control, status)
	go func() {
		if err := broadcaster.Start(ctx, cfg.Server.Addr); err != nil {
			log.Printf("[Broadcast] server error: %v", err)
			cancel()
		}
	}()

	// 9. Producer
	switch cfg.Producer.Mode {
	case config.ModeWebsocket:
		ingest.NewIngester(cfg.Producer.URL, sampleBus).Start(ctx)
	default:
		p := cfg.Producer
		ingest.NewSynthetic(ingest.SyntheticConfig{
			Sources:     cfg.Engine.Sources,
			SampleRate:  p.SampleRate,
			BatchSize:   p.BatchSize,
			ToneHz:      p.ToneHz,
			Amplitude:   p.Amplitude,
			Noise:       p.Noise,
			BurstPeriod: p.BurstPeriod,
			BurstLength: p.BurstLength,
			BurstGain:   p.BurstGain,
		}, sampleBus).Start(ctx)
	}

	// 10. Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	cancel()
	<-w.Done()
	close(frameCh)
	<-dispatched
	capLogger.Close()
	if rec != nil {
		rec.Close()
	}
	log.Printf("Stopped: %d captures, %d dropped feeds, %d dropped batches",
		eng.Status().Captures, eng.Dropped(), sampleBus.Dropped())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
