package track

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
)

// ErrEmptyTrack is returned when a track log holds no usable fixes.
var ErrEmptyTrack = errors.New("track has no fixes")

// Fix is one timestamped GPS sample.
type Fix struct {
	Time         time.Time
	Latitude     float64
	Longitude    float64
	Elevation    float64
	HasElevation bool
}

// ParseError reports a track log that cannot be turned into a Track.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse track: %v", e.Err)
	}
	return fmt.Sprintf("parse track %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Track is an immutable, time-ordered sequence of fixes.
type Track struct {
	fixes []Fix
}

// New builds a Track from fixes that are already in recording order.
// Fixes must be non-empty, carry a timestamp and valid coordinates, and be
// non-decreasing in time.
func New(fixes []Fix) (*Track, error) {
	if len(fixes) == 0 {
		return nil, &ParseError{Err: ErrEmptyTrack}
	}

	out := make([]Fix, len(fixes))
	for i, f := range fixes {
		if f.Time.IsZero() {
			return nil, &ParseError{Err: fmt.Errorf("point %d has no timestamp", i)}
		}
		if f.Latitude < -90 || f.Latitude > 90 || f.Longitude < -180 || f.Longitude > 180 {
			return nil, &ParseError{Err: fmt.Errorf("point %d has invalid coordinates (%.6f, %.6f)", i, f.Latitude, f.Longitude)}
		}
		f.Time = f.Time.UTC()
		if i > 0 && f.Time.Before(out[i-1].Time) {
			return nil, &ParseError{Err: fmt.Errorf("point %d at %s is earlier than point %d at %s",
				i, f.Time.Format(time.RFC3339), i-1, out[i-1].Time.Format(time.RFC3339))}
		}
		out[i] = f
	}
	return &Track{fixes: out}, nil
}

// Load parses a GPX document. Every track and segment is flattened in file
// order into one sequence, which must be globally non-decreasing in time.
func Load(r io.Reader) (*Track, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("read: %w", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Err: ErrEmptyTrack}
	}

	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	var fixes []Fix
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				fixes = append(fixes, Fix{
					Time:         p.Timestamp,
					Latitude:     p.Latitude,
					Longitude:    p.Longitude,
					Elevation:    p.Elevation.Value(),
					HasElevation: p.Elevation.NotNull(),
				})
			}
		}
	}
	return New(fixes)
}

// LoadFile opens path and parses it with Load.
func LoadFile(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Source = path
		}
		return nil, err
	}
	return t, nil
}

// Len returns the number of fixes.
func (t *Track) Len() int { return len(t.fixes) }

// Fixes returns a copy of the fixes.
func (t *Track) Fixes() []Fix {
	out := make([]Fix, len(t.fixes))
	copy(out, t.fixes)
	return out
}

// Bounds returns the first and last timestamp of the track.
func (t *Track) Bounds() (earliest, latest time.Time) {
	if len(t.fixes) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.fixes[0].Time, t.fixes[len(t.fixes)-1].Time
}
