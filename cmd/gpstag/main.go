package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/electronjoe/gpstag/internal/batch"
	"github.com/electronjoe/gpstag/internal/clock"
	"github.com/electronjoe/gpstag/internal/config"
	"github.com/electronjoe/gpstag/internal/observability"
	"github.com/electronjoe/gpstag/internal/photo"
	"github.com/electronjoe/gpstag/internal/tagger"
	"github.com/electronjoe/gpstag/internal/track"
)

const exitCanceled = 2

func main() {
	configPath := flag.String("config", "", "config file (default ~/.gpstag/config.yaml)")
	importDir := flag.String("import", "", "directory of images to tag")
	exportDir := flag.String("export", "", "directory tagged copies are written to")
	gpxFile := flag.String("gpx", "", "GPX track log")
	cameraTZ := flag.String("camera-tz", "", `camera clock timezone, e.g. "UTC+10:00" or "Australia/Brisbane"`)
	refPhoto := flag.String("ref-photo", "", "photo of the GPS display, enables drift correction")
	refDate := flag.String("ref-date", "", "date shown on the GPS display (2006-01-02)")
	refTime := flag.String("ref-time", "", "time shown on the GPS display (15:04:05)")
	gpsTZ := flag.String("gps-tz", "", "timezone of the GPS display")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	logFormat := flag.String("log-format", "", "console or json")
	metricsFile := flag.String("metrics-file", "", "write Prometheus metrics to this file when done")
	flag.Parse()

	// 1. Read config, flags win
	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Read()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.ImportDir, *importDir)
	override(&cfg.ExportDir, *exportDir)
	override(&cfg.GPXFile, *gpxFile)
	override(&cfg.CameraTimezone, *cameraTZ)
	override(&cfg.Reference.Photo, *refPhoto)
	override(&cfg.Reference.Date, *refDate)
	override(&cfg.Reference.Time, *refTime)
	override(&cfg.Reference.GPSTimezone, *gpsTZ)
	override(&cfg.Log.Level, *logLevel)
	override(&cfg.Log.Format, *logFormat)
	override(&cfg.MetricsFile, *metricsFile)
	if *refPhoto != "" {
		cfg.Reference.Enabled = true
	}

	// 2. Logger
	logger, err := observability.NewLogger(observability.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	// 3. Validate before touching anything
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	// 4. Load track
	trk, err := track.LoadFile(cfg.GPXFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load GPX track")
	}
	earliest, latest := trk.Bounds()
	logger.Info().Int("fixes", trk.Len()).Time("from", earliest).Time("to", latest).Msg("Loaded track")

	// 5. Clock offset
	off, err := resolveOffset(cfg, earliest)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to determine camera clock offset")
	}
	logger.Info().Str("offset", off.String()).Msg("Camera clock offset")

	tg, err := tagger.New(trk, off)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create tagger")
	}

	// 6. Worker
	reg := prometheus.NewRegistry()
	w, err := batch.New(batch.Config{
		ImportDir:   cfg.ImportDir,
		ExportDir:   cfg.ExportDir,
		Tagger:      tg,
		Attribution: cfg.Attribution.Tags(),
		Logger:      logger,
		Metrics:     observability.NewMetrics(reg),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create batch worker")
	}

	// 7. Run until done or interrupted
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	summary := render(w.Run(ctx))
	fmt.Println("Finished geotagging images.")
	logger.Info().Str("run", summary.RunID).Int("tagged", summary.Tagged).Int("skipped", summary.Skipped).
		Int("total", summary.Total).Msg("Summary")

	// 8. Metrics
	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			logger.Error().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics")
		}
	}

	if summary.Canceled {
		cancel()
		os.Exit(exitCanceled)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// resolveOffset measures drift from the reference photo when one is
// configured, otherwise trusts the camera clock in its declared timezone.
// IANA zone names resolve at trackStart.
func resolveOffset(cfg config.Config, trackStart time.Time) (clock.Offset, error) {
	zone, err := cfg.CameraZone(trackStart)
	if err != nil {
		return clock.Offset{}, fmt.Errorf("camera timezone: %w", err)
	}
	if !cfg.Reference.Enabled {
		return clock.FromDeclaredOffset(zone), nil
	}

	capture, err := photo.ReadCapture(cfg.Reference.Photo)
	if err != nil {
		return clock.Offset{}, fmt.Errorf("read reference photo: %w", err)
	}
	if capture.Time.IsZero() {
		return clock.Offset{}, errors.New("reference photo has no capture timestamp")
	}
	known, err := cfg.Reference.KnownTime()
	if err != nil {
		return clock.Offset{}, fmt.Errorf("reference GPS time: %w", err)
	}
	return clock.FromReferencePhoto(capture.Time, known, zone), nil
}

// render prints progress and diagnostics as they arrive.
func render(events <-chan batch.Event) batch.Summary {
	var summary batch.Summary
	for e := range events {
		switch e.Kind {
		case batch.EventProgress:
			fmt.Printf("[%3d%%] %d/%d %s: %s\n", percent(e.Completed, e.Total), e.Completed, e.Total, e.Path, e.Outcome)
		case batch.EventDiagnostic:
			fmt.Fprintln(os.Stderr, e.Message)
		case batch.EventFinished:
			summary = *e.Summary
			if summary.Canceled {
				fmt.Printf("Canceled after %d of %d images.\n", summary.Completed, summary.Total)
			} else {
				fmt.Println("[100%] done")
			}
		}
	}
	return summary
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}
