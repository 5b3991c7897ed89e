// Command core-recorder joins the configured multicast RTP feed, runs one
// Actor per channel, and anchors each channel's RTP clock to UTC via the
// time-snap tone detector (spec.md §4.1-§4.4, §4.13).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/mijahauan/signal-recorder-sub001/archive"
	"github.com/mijahauan/signal-recorder-sub001/channel"
	"github.com/mijahauan/signal-recorder-sub001/config"
	"github.com/mijahauan/signal-recorder-sub001/internal/logging"
	"github.com/mijahauan/signal-recorder-sub001/ntpcache"
	"github.com/mijahauan/signal-recorder-sub001/rtpdemux"
	"github.com/mijahauan/signal-recorder-sub001/status"
	"github.com/mijahauan/signal-recorder-sub001/timesnap"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "path to YAML config file")
	metricsAddr := flag.String("metrics-addr", "", "override config.metrics_addr")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *metricsAddr); err != nil {
		log.Fatal().Err(err).Msg("core-recorder exited with error")
	}
}

func run(ctx context.Context, configPath, metricsAddrOverride string) error {
	logger := logging.Setup("core-recorder")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	metricsAddr := cfg.MetricsAddr
	if metricsAddrOverride != "" {
		metricsAddr = metricsAddrOverride
	}

	registry := prometheus.NewRegistry()
	reporter := status.NewReporter("core-recorder", cfg.StatusDir(), registry)
	reporter.SetState("init")

	ntp := ntpcache.New()

	demux := rtpdemux.New(cfg.Multicast.Group, cfg.Multicast.Port, cfg.Multicast.Interface)

	var wg sync.WaitGroup
	for _, ch := range cfg.Channels {
		ch := ch
		chLog := logger.With().Str("channel", ch.Name).Logger()

		samplesPerPacket := estimateSamplesPerPacket(ch.SampleRate)

		actor := channel.NewActor(ch.Name, ch.SampleRate, samplesPerPacket, ch.FrequencyHz, ntp,
			func() string { return cfg.ArchiveDir(ch.Name) }, chLog)
		actor.OnArchive = func(rec *archive.Record, path string) {
			reporter.IncCounter(fmt.Sprintf("%s_archives_written", ch.Name), 1)
		}

		detector := timesnap.NewDetector(ch.SampleRate, cfg.TimeSnap.BufferSeconds,
			cfg.TimeSnap.CorrectionThresholdMs, cfg.TimeSnap.MinIntervalS, ntp, chLog)
		detector.OnAnchor = actor.SetAnchor
		detector.OnDiscontinuity = actor.RecordDiscontinuity
		actor.OnMinuteSamples = detector.Feed

		demux.Register(ch.SSRC, func(pkt rtpdemux.Packet) {
			samples := rtpdemux.DecodeIQ(pkt.Payload)
			detector.Feed(pkt.TS, samples)
			actor.Enqueue(pkt)
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			actor.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ntp.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		status.ServeMetrics(ctx, metricsAddr, registry, logger)
	}()

	reporter.SetState("recording")
	logger.Info().Str("group", cfg.Multicast.Group).Int("port", cfg.Multicast.Port).
		Int("channels", len(cfg.Channels)).Msg("core-recorder starting")

	err = demux.Run(ctx)
	reporter.SetState("stopping")
	wg.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("demultiplexer: %w", err)
	}
	return nil
}

// estimateSamplesPerPacket assumes a fixed 20 ms RTP packetization
// interval, the narrowband-I/Q convention this pipeline's upstream feed
// uses; a channel with an unusual packetizer would need this configurable,
// which spec.md's channel schema does not currently expose.
func estimateSamplesPerPacket(sampleRate uint32) uint32 {
	return sampleRate / 50
}
