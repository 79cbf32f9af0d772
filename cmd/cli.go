package cmd

import (
	"fmt"

	"spectro/internal/config"
	"spectro/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected by ParseArgs.
const (
	CommandLive = "live"
	CommandPlay = "play"
	CommandList = "list"
)

// flagValues receives the raw flag values. Only flags the user actually set
// override the loaded configuration.
type flagValues struct {
	configPath    string
	inputDevice   int
	outputDevice  int
	sampleRate    float64
	blockSize     int
	lowLatency    bool
	fftSize       int
	history       int
	window        string
	normalization string
	mode          string
	maxFrequency  float64
	gate          float64
	mute          bool
	record        bool
	outputFile    string
	websocket     bool
	udp           bool
	metrics       bool
	verbose       bool
	logFile       string
	listTUI       bool
}

// ParseArgs builds the configuration from defaults, the config file, the
// environment and finally args. A nil error with an empty Command means
// cobra handled the invocation itself (help, version).
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	var (
		options *config.Config
		flags   flagValues
	)

	load := func(cmd *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg, &flags)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		cfg.Command = command
		options = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Long:          buildInfo.Description + ".\n\nWithout a subcommand the default input device is visualized live.",
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, CommandLive)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	playCmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play an MP3 or WAV file and visualize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := load(cmd, CommandPlay); err != nil {
				return err
			}
			options.TrackPath = args[0]
			return nil
		},
	}
	rootCmd.AddCommand(playCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := load(cmd, CommandList); err != nil {
				return err
			}
			options.ListTUI = flags.listTUI
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&flags.listTUI, "tui", "t", false,
		"Browse devices interactively")
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&flags.configPath, "config", "C", "",
		"Path to a YAML config file (default spectro.yaml or config.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.inputDevice, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVar(&flags.outputDevice, "output-device", config.DefaultDeviceID,
		"Output device ID for file playback")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.blockSize, "block-size", "b", config.DefaultBlockSize,
		"Samples per frame (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.Float64Var(&flags.gate, "gate", 0,
		"Noise gate threshold in [0,1] for live input, 0 disables it")
	pf.BoolVar(&flags.mute, "mute", false,
		"Visualize files without playing them")

	// Spectrogram Configuration
	pf.IntVarP(&flags.fftSize, "fft-size", "f", config.DefaultFFTSize,
		"FFT length, a power of two; bins = fft-size/2")
	pf.IntVar(&flags.history, "history", config.DefaultHistory,
		"Number of spectrogram rows kept")
	pf.StringVarP(&flags.window, "window", "w", config.DefaultWindow,
		"Window function (Hann, Hamming, Blackman, BlackmanNuttall, BartlettHann, Lanczos, Nuttall, Rectangular)")
	pf.StringVar(&flags.normalization, "normalization", config.DefaultNormalization,
		"Magnitude normalization: peak or fixed")

	// Render Configuration
	pf.StringVarP(&flags.mode, "mode", "m", config.DefaultRenderMode,
		"Terminal view: 3d waterfall, 2d bars or none")
	pf.Float64Var(&flags.maxFrequency, "max-frequency", config.DefaultMaxFrequency,
		"Highest frequency shown in the 2d view (Hz)")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record audio from the specified input device")
	pf.StringVarP(&flags.outputFile, "output", "o", "",
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Network sinks and metrics
	pf.BoolVar(&flags.websocket, "websocket", false, "Broadcast snapshots over WebSocket")
	pf.BoolVar(&flags.udp, "udp", false, "Send the newest row over UDP")
	pf.BoolVar(&flags.metrics, "metrics", false, "Serve Prometheus metrics")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVar(&flags.logFile, "log-file", "",
		"Write logs to this file instead of stderr")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options == nil {
		options = config.NewConfig()
	}
	return options, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *flagValues) {
	set := cmd.Flags().Changed

	if set("device") {
		cfg.Audio.InputDevice = f.inputDevice
	}
	if set("output-device") {
		cfg.Audio.OutputDevice = f.outputDevice
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if set("block-size") {
		cfg.Audio.BlockSize = f.blockSize
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if set("gate") {
		cfg.Audio.GateThreshold = f.gate
	}
	if set("mute") {
		cfg.Audio.Mute = f.mute
	}
	if set("window") {
		cfg.Audio.FFTWindow = f.window
	}
	if set("fft-size") {
		cfg.Spectrogram.FFTSize = f.fftSize
	}
	if set("history") {
		cfg.Spectrogram.History = f.history
	}
	if set("normalization") {
		cfg.Spectrogram.Normalization = f.normalization
	}
	if set("mode") {
		cfg.Render.Mode = f.mode
	}
	if set("max-frequency") {
		cfg.Render.MaxFrequency = f.maxFrequency
	}
	if set("record") {
		cfg.Recording.Enabled = f.record
	}
	if set("output") {
		cfg.Recording.OutputFile = f.outputFile
	}
	if set("websocket") {
		cfg.Transport.WebSocketEnabled = f.websocket
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = f.udp
	}
	if set("metrics") {
		cfg.Metrics.Enabled = f.metrics
	}
	if set("verbose") {
		cfg.Debug = f.verbose
	}
	if set("log-file") {
		cfg.LogFile = f.logFile
	}
}
