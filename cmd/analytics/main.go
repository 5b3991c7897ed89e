// Command analytics watches each channel's minute archive directory, runs
// the station discrimination methods over each full-rate record, upserts
// the result into the daily discrimination CSV, and separately writes a
// 10 Hz decimated copy of the minute for downstream long-window analysis
// (spec.md §4.6-§4.12, §6.5).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/mijahauan/signal-recorder-sub001/archive"
	"github.com/mijahauan/signal-recorder-sub001/config"
	"github.com/mijahauan/signal-recorder-sub001/discriminate"
	"github.com/mijahauan/signal-recorder-sub001/dsp"
	"github.com/mijahauan/signal-recorder-sub001/internal/logging"
	"github.com/mijahauan/signal-recorder-sub001/status"
	"github.com/mijahauan/signal-recorder-sub001/watcher"
)

// decimatedRate is the fixed target rate spec.md §4.7 names for the
// {data_root}/analytics/{channel}/decimated product. The discrimination
// methods themselves (tone/BCD/tick, §4.8-§4.10) run on the full-rate
// archive: the 1000/1200/440 Hz tones and the 100 Hz BCD subcarrier all
// sit above a 10 Hz Nyquist, so the decimator's own anti-alias filter
// (dsp.NewDecimator) would remove them before detection ever saw them.
const decimatedRate = 10

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "path to YAML config file")
	metricsAddr := flag.String("metrics-addr", "", "override config.metrics_addr")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *configPath, *metricsAddr); err != nil {
		log.Fatal().Err(err).Msg("analytics exited with error")
	}
}

func run(ctx context.Context, configPath, metricsAddrOverride string) error {
	logger := logging.Setup("analytics")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	metricsAddr := cfg.MetricsAddr
	if metricsAddrOverride != "" {
		metricsAddr = metricsAddrOverride
	}

	registry := prometheus.NewRegistry()
	reporter := status.NewReporter("analytics", cfg.StatusDir(), registry)
	reporter.SetState("init")

	var wg sync.WaitGroup
	for _, ch := range cfg.Channels {
		ch := ch
		chLog := logger.With().Str("channel", ch.Name).Logger()

		decimator := dsp.NewDecimator(ch.SampleRate, decimatedRate)
		csvWriter := discriminate.NewCSVWriter(cfg.DiscriminationDir(ch.Name), ch.Name)
		decimatedDir := cfg.DecimatedDir(ch.Name)

		w := watcher.New(cfg.ArchiveDir(ch.Name), cfg.StateDir()+"/"+ch.Name+"-watcher.json", chLog)
		w.OnRecord = func(rec *archive.Record, path string) {
			processRecord(rec, decimator, csvWriter, decimatedDir, cfg, reporter, ch.Name, chLog)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

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

	reporter.SetState("running")
	logger.Info().Int("channels", len(cfg.Channels)).Msg("analytics starting")

	<-ctx.Done()
	reporter.SetState("stopping")
	wg.Wait()
	return nil
}

// processRecord runs the discrimination pipeline over one minute archive
// at its native sample rate, writes the result into the channel's daily
// CSV, and separately decimates the minute to 10 Hz for the
// {data_root}/analytics/{channel}/decimated product (spec.md §4.7-§4.12,
// §6.5). Tone, 440 Hz station-ID, and BCD detection all need signal
// content above 10 Hz Nyquist, so they must run before decimation, not
// after — the decimated copy is a separate downstream product, not an
// intermediate step in discrimination.
func processRecord(rec *archive.Record, decimator *dsp.Decimator, csvWriter *discriminate.CSVWriter, decimatedDir string, cfg *config.Config, reporter *status.Reporter, channelName string, log zerolog.Logger) {
	minuteStart := time.Unix(int64(rec.UnixTimestamp), 0).UTC()
	minuteOfHour := minuteStart.Minute()

	out := discriminate.AnalyzeMinute(discriminate.MinuteInputs{
		MinuteIQ:        rec.IQ,
		SampleRate:      float64(rec.SampleRate),
		MinuteTimestamp: minuteStart.Unix(),
		MinuteOfHour:    minuteOfHour,

		ReceiverLatDeg: cfg.Station.LatitudeDeg,
		ReceiverLonDeg: cfg.Station.LongitudeDeg,

		BCDWindowS: cfg.BCD.WindowS,
		BCDStepS:   cfg.BCD.StepS,
		BCDQuality: cfg.BCD.QualityThreshold,

		MinMarginDb:      cfg.Voting.MinMarginDb,
		BalanceThreshold: cfg.Voting.BalanceThreshold,
		HighConfidence:   cfg.Voting.HighConfidence,
		MediumConfidence: cfg.Voting.MediumConfidence,
	})

	if err := csvWriter.Write(out); err != nil {
		log.Error().Err(err).Msg("failed to write discrimination row")
		return
	}
	reporter.IncCounter(fmt.Sprintf("%s_minutes_discriminated", channelName), 1)
	log.Info().Str("dominant", string(out.DominantStation)).Str("confidence", string(out.Confidence)).
		Msg("minute discriminated")

	decimated := decimator.Decimate(rec.IQ)
	if _, err := archive.WriteDecimatedAtomic(decimatedDir, decimated, decimatedRate, channelName, minuteStart); err != nil {
		log.Error().Err(err).Msg("failed to write decimated analytics product")
	}
}
