// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"beatbox/cmd"
	"beatbox/internal/audio"
	"beatbox/internal/engine"
	applog "beatbox/internal/log"
	"beatbox/internal/transport"
	"beatbox/internal/transport/udp"
	"beatbox/pkg/build"
)

// main is the entry point for the classification engine. The program flow is
// divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Initialize PortAudio
//   - Parse command line arguments
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the engine (live capture or fixture session)
//   - Attach outbound transports
//   - Start recording and calibration if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop recording if active
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	build.Initialize()

	// Limit OS threads to optimize for real-time audio processing:
	// - One thread dedicated to the capture callback (time-critical)
	// - One thread for analysis and I/O
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	opts, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	// One-off commands that don't need the engine running.
	if opts.Command == "devices" {
		if err := audio.ListDevices(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}
	if !opts.Run {
		return
	}

	cfg := opts.Config
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	eng, err := engine.New(cfg)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	eng.AddTransport(transport.NewLoggingTransport())
	if cfg.Transport.WebsocketEnabled {
		ws, err := transport.NewWebsocketBroadcaster(cfg.Transport.WebsocketAddr)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		eng.AddTransport(ws)
	}

	var publisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		interval := time.Duration(cfg.Transport.UDPSendIntervalMs) * time.Millisecond
		publisher, err = udp.NewPublisher(interval, sender, func() udp.Stats {
			s := eng.Stats()
			return udp.Stats{
				AvgLatencyMs:   s.AvgLatencyMs,
				MaxLatencyMs:   s.MaxLatencyMs,
				QueueOccupancy: s.QueueOccupancy,
				QueueDropped:   s.QueueDropped,
				PoolExhausted:  s.PoolExhausted,
				BusDropped:     s.BusDropped,
			}
		})
		if err != nil {
			applog.Fatalf("%v", err)
		}
		publisher.Start()
		defer func() {
			publisher.Stop()
			sender.Close()
		}()
	}

	if opts.Calibrate {
		if err := eng.StartCalibration(); err != nil {
			applog.Fatalf("%v", err)
		}
		prog := eng.SubscribeProgress()
		go func() {
			for p := range prog.C() {
				fmt.Printf("[calibration] %s: %s\n", p.Step, p.Guidance)
			}
		}()
	}

	results := eng.SubscribeResults()
	go func() {
		for r := range results.C() {
			fmt.Printf("%6dms  %-12s conf=%.2f  %s %+.1fms\n",
				r.TimestampMs, r.Sound, r.Confidence, r.Timing, r.TimingErrorMs)
		}
	}()

	// CRITICAL: the first Start call triggers the capture (or fixture pump)
	// goroutines, marking the start of the hot path.
	if opts.FixtureWav != "" {
		err = eng.StartFixtureSession(engine.FixtureSpec{
			Source: engine.FixtureWAV,
			Path:   opts.FixtureWav,
			Bpm:    cfg.Audio.Bpm,
		})
	} else {
		err = eng.StartAudio(cfg.Audio.Bpm)
	}
	if err != nil {
		applog.Fatalf("%v", err)
	}

	if opts.Record {
		if err := os.MkdirAll(filepath.Dir(opts.OutputFile), 0o755); err != nil {
			applog.Fatalf("%v", err)
		}
		if err := eng.StartRecording(opts.OutputFile); err != nil {
			applog.Fatalf("%v", err)
		}
	}

	// Block until the fixture drains or a termination signal arrives.
	if opts.FixtureWav != "" {
		select {
		case <-eng.FixtureDone():
			// Give the analysis drain a moment to publish its tail.
			time.Sleep(100 * time.Millisecond)
		case <-done:
		}
	} else {
		<-done
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if opts.Record {
		if err := eng.StopRecording(); err != nil {
			applog.Errorf("stopping recording: %v", err)
		} else {
			fmt.Printf("\nRecording saved to: %s\n", opts.OutputFile)
		}
	}

	if err := eng.Close(); err != nil {
		applog.Errorf("closing engine: %v", err)
	}
}
