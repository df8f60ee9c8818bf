package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/electronjoe/gpstag/internal/batch"
	"github.com/electronjoe/gpstag/internal/clock"
	"github.com/electronjoe/gpstag/internal/photo"
)

const (
	DefaultConfigPath = ".gpstag/config.yaml"
	envPrefix         = "GPSTAG_"
)

// Config represents the YAML config structure.
type Config struct {
	ImportDir string `yaml:"import_dir"`
	ExportDir string `yaml:"export_dir"`
	GPXFile   string `yaml:"gpx_file"`
	// CameraTimezone is the zone the camera clock was set to: a fixed offset
	// such as "UTC+10:00" or an IANA name.
	CameraTimezone string            `yaml:"camera_timezone"`
	Reference      ReferenceConfig   `yaml:"reference"`
	Attribution    AttributionConfig `yaml:"attribution"`
	Log            LogConfig         `yaml:"log"`
	// MetricsFile, when set, receives the run's metrics in Prometheus text
	// format.
	MetricsFile string `yaml:"metrics_file"`
}

// ReferenceConfig describes a photo of the GPS unit's display, used to
// measure camera clock drift.
type ReferenceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Photo       string `yaml:"photo"`
	Date        string `yaml:"date"` // 2006-01-02
	Time        string `yaml:"time"` // 15:04:05
	GPSTimezone string `yaml:"gps_timezone"`
}

type AttributionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CollectorName  string `yaml:"collector_name"`
	CollectorORCID string `yaml:"collector_orcid"`
	PIName         string `yaml:"pi_name"`
	PIORCID        string `yaml:"pi_orcid"`
	Organisation   string `yaml:"organisation"`
	License        string `yaml:"license"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		CameraTimezone: "UTC+00:00",
		Reference:      ReferenceConfig{GPSTimezone: "UTC+00:00"},
		Attribution:    AttributionConfig{License: "CC BY 4.0"},
		Log:            LogConfig{Level: "info", Format: "console"},
	}
}

// DefaultPath returns ~/.gpstag/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultConfigPath), nil
}

// Read loads the config from ~/.gpstag/config.yaml.
func Read() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Config{}, err
	}
	return Load(path)
}

// Load reads the YAML config at path over the defaults, then applies
// GPSTAG_* environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file at %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	for name, dst := range map[string]*string{
		"IMPORT_DIR":      &c.ImportDir,
		"EXPORT_DIR":      &c.ExportDir,
		"GPX_FILE":        &c.GPXFile,
		"CAMERA_TIMEZONE": &c.CameraTimezone,
		"REFERENCE_PHOTO": &c.Reference.Photo,
		"REFERENCE_DATE":  &c.Reference.Date,
		"REFERENCE_TIME":  &c.Reference.Time,
		"GPS_TIMEZONE":    &c.Reference.GPSTimezone,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
		"METRICS_FILE":    &c.MetricsFile,
	} {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	if os.Getenv(envPrefix+"REFERENCE_PHOTO") != "" {
		c.Reference.Enabled = true
	}
}

var orcidPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)

// Validate checks everything that must hold before a batch starts and
// reports every problem found.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(checkDir("import directory", c.ImportDir))
	add(checkDir("export directory", c.ExportDir))
	if c.ImportDir != "" && c.ExportDir != "" {
		add(batch.CheckDirs(c.ImportDir, c.ExportDir))
	}
	add(checkFile("GPX file", c.GPXFile))

	if _, err := c.CameraZone(time.Now()); err != nil {
		add(fmt.Errorf("camera timezone: %w", err))
	}

	if c.Reference.Enabled {
		add(checkFile("reference photo", c.Reference.Photo))
		if _, err := c.Reference.KnownTime(); err != nil {
			add(fmt.Errorf("reference GPS time: %w", err))
		}
	}

	if c.Attribution.Enabled {
		for _, o := range []struct{ field, value string }{
			{"collector ORCID", c.Attribution.CollectorORCID},
			{"PI ORCID", c.Attribution.PIORCID},
		} {
			if o.value != "" && !orcidPattern.MatchString(o.value) {
				add(fmt.Errorf("%s %q is not of the form 0000-0000-0000-000X", o.field, o.value))
			}
		}
	}

	return errors.Join(errs...)
}

func checkDir(name, path string) error {
	if path == "" {
		return fmt.Errorf("%s is empty", name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s does not exist: %w", name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %s is not a directory", name, path)
	}
	return nil
}

func checkFile(name, path string) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", name)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s does not exist: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s %s is not a file", name, path)
	}
	return nil
}

// CameraZone resolves CameraTimezone. IANA names use the offset in effect
// at instant at.
func (c Config) CameraZone(at time.Time) (clock.TimezoneCorrection, error) {
	return resolveZone(c.CameraTimezone, at)
}

// KnownTime is the instant shown on the GPS display in the reference photo.
func (r ReferenceConfig) KnownTime() (time.Time, error) {
	if r.Date == "" || r.Time == "" {
		return time.Time{}, errors.New("date and time are required")
	}
	day, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	zone, err := resolveZone(r.GPSTimezone, day.Add(12*time.Hour))
	if err != nil {
		return time.Time{}, fmt.Errorf("GPS timezone: %w", err)
	}
	return clock.ParseWallClock(r.Date, r.Time, zone)
}

func resolveZone(s string, at time.Time) (clock.TimezoneCorrection, error) {
	z, err := clock.ParseTimezone(s)
	if err == nil {
		return z, nil
	}
	if z, locErr := clock.ZoneFromLocation(s, at); locErr == nil {
		return z, nil
	}
	return clock.TimezoneCorrection{}, err
}

// Tags returns the Artist and Copyright tags written into every tagged
// copy, or empty tags when attribution is disabled.
func (a AttributionConfig) Tags() photo.Tags {
	if !a.Enabled {
		return photo.Tags{}
	}

	collector := a.CollectorName + " (Image collector)"
	if a.CollectorORCID != "" {
		collector = fmt.Sprintf("%s (Image collector, ORCID: %s)", a.CollectorName, a.CollectorORCID)
	}
	pi := a.PIName + " (Principal Investigator)"
	if a.PIORCID != "" {
		pi = fmt.Sprintf("%s (Principal Investigator, ORCID: %s)", a.PIName, a.PIORCID)
	}

	return photo.Tags{
		Artist:    collector + "; " + pi,
		Copyright: fmt.Sprintf("%s (Licensed under %s)", a.Organisation, a.License),
	}
}
