// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"beatbox/internal/config"
	"beatbox/pkg/build"
)

// Options is the parsed invocation: the layered configuration (defaults →
// YAML file → environment → flags) plus the selected one-off command.
type Options struct {
	Config  *config.Config
	Command string // "" runs the engine; "devices" lists inputs and exits
	Run     bool

	Record     bool
	OutputFile string

	FixtureWav string // non-empty: classify this file instead of live capture
	Calibrate  bool   // start a guided calibration run at launch
}

func ParseArgs() (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}

	var (
		configPath      string
		device          int
		sampleRate      float64
		channels        int
		framesPerBuffer int
		lowLatency      bool
		bpm             float64
		wsAddr          string
		udpTarget       string
		verbose         bool
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			// Flags override file and environment values, but only when the
			// user actually passed them.
			f := cmd.Flags()
			if f.Changed("device") {
				cfg.Audio.InputDevice = device
			}
			if f.Changed("sample-rate") {
				cfg.Audio.SampleRate = sampleRate
			}
			if f.Changed("channels") {
				cfg.Audio.InputChannels = channels
			}
			if f.Changed("frames-per-buffer") {
				cfg.Audio.FramesPerBuffer = framesPerBuffer
			}
			if f.Changed("low-latency") {
				cfg.Audio.LowLatency = lowLatency
			}
			if f.Changed("bpm") {
				cfg.Audio.Bpm = bpm
			}
			if f.Changed("ws") {
				cfg.Transport.WebsocketEnabled = true
				cfg.Transport.WebsocketAddr = wsAddr
			}
			if f.Changed("udp") {
				cfg.Transport.UDPEnabled = true
				cfg.Transport.UDPTargetAddress = udpTarget
			}
			if verbose {
				cfg.Debug = true
				cfg.LogLevel = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if opts.Record && opts.OutputFile == "" {
				opts.OutputFile = filepath.Join(cfg.Recording.OutputDir,
					"session-"+time.Now().UTC().Format("02-01-2006-150405")+".wav")
			}

			opts.Config = cfg
			opts.Run = true
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Devices command
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio input devices",
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = "devices"
		},
	}
	rootCmd.AddCommand(devicesCmd)

	// Configuration file
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&device, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'devices' command to see available devices.")
	rootCmd.PersistentFlags().IntVarP(&channels, "channels", "c", config.DefaultInputChannels,
		"Number of input channels (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	rootCmd.PersistentFlags().BoolVarP(&lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Tempo
	rootCmd.PersistentFlags().Float64Var(&bpm, "bpm", config.DefaultBpm,
		"Tempo of the quantization grid in beats per minute")

	// Transports
	rootCmd.PersistentFlags().StringVar(&wsAddr, "ws", ":8080",
		"Enable the websocket event stream on this listen address")
	rootCmd.PersistentFlags().StringVar(&udpTarget, "udp", "127.0.0.1:9090",
		"Enable the binary UDP metric feed to this target address")

	// Recording Configuration
	rootCmd.PersistentFlags().BoolVarP(&opts.Record, "record", "r", false,
		"Record the analyzed stream to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&opts.OutputFile, "output", "o", "",
		"Output file name. Default is session-DD-MM-YYYY-HHMMSS.wav")

	// Session modes
	rootCmd.PersistentFlags().StringVar(&opts.FixtureWav, "fixture", "",
		"Classify this WAV file through the pipeline instead of live capture")
	rootCmd.PersistentFlags().BoolVar(&opts.Calibrate, "calibrate", false,
		"Start a guided calibration run before classifying")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return opts, nil
}
