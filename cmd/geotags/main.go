// Command geotags reports the GPS position and capture time recorded in
// each image below a directory, writing one geotags.json per directory.
// It is meant for checking a gpstag export.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/electronjoe/gpstag/internal/observability"
	"github.com/electronjoe/gpstag/internal/photo"
)

// ImageGeotag holds what was found in one image.
type ImageGeotag struct {
	Captured  *time.Time `json:"captured,omitempty"`
	Platform  string     `json:"platform"`
	Latitude  float64    `json:"latitude,omitempty"`
	Longitude float64    `json:"longitude,omitempty"`
	Tagged    bool       `json:"tagged"`
}

func main() {
	rootDir := flag.String("root", "", "directory containing tagged images")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger, err := observability.NewLogger(observability.Options{Level: *logLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *rootDir == "" {
		logger.Fatal().Msg("Please provide a directory using the -root flag")
	}

	paths, err := photo.List(logger, *rootDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to list images")
	}

	byDir := make(map[string][]string)
	for _, p := range paths {
		dir := filepath.Dir(p)
		byDir[dir] = append(byDir[dir], p)
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		if err := writeDir(logger, dir, byDir[dir]); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("Failed to write geotags")
		}
	}
}

// writeDir writes geotags.json into dir, mapping image file names to what
// was read from them. Images that cannot be read are logged and left out.
func writeDir(logger zerolog.Logger, dir string, images []string) error {
	geotags := make(map[string]ImageGeotag, len(images))
	for _, path := range images {
		g, err := readGeotag(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping image")
			continue
		}
		geotags[filepath.Base(path)] = g
	}

	data, err := json.MarshalIndent(geotags, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal geotags: %w", err)
	}
	jsonPath := filepath.Join(dir, "geotags.json")
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("write geotags: %w", err)
	}
	logger.Info().Str("path", jsonPath).Int("images", len(geotags)).Msg("Wrote geotags")
	return nil
}

func readGeotag(path string) (ImageGeotag, error) {
	capture, err := photo.ReadCapture(path)
	if err != nil {
		return ImageGeotag{}, err
	}
	lat, lon, ok, err := photo.ReadLocation(path)
	if err != nil {
		return ImageGeotag{}, err
	}

	g := ImageGeotag{Platform: capture.Platform(), Tagged: ok}
	if !capture.Time.IsZero() {
		g.Captured = &capture.Time
	}
	if ok {
		g.Latitude, g.Longitude = lat, lon
	}
	return g, nil
}
