package track

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrOutOfTrackRange is returned when a timestamp lies outside the span
// covered by a track. No extrapolation is performed.
var ErrOutOfTrackRange = errors.New("timestamp outside track range")

// RangeError carries the details of an ErrOutOfTrackRange failure.
type RangeError struct {
	At       time.Time
	Earliest time.Time
	Latest   time.Time
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%v: %s not within %s .. %s", ErrOutOfTrackRange,
		e.At.Format(time.RFC3339), e.Earliest.Format(time.RFC3339), e.Latest.Format(time.RFC3339))
}

func (e *RangeError) Unwrap() error { return ErrOutOfTrackRange }

// Position is an interpolated location.
type Position struct {
	Latitude     float64
	Longitude    float64
	Elevation    float64
	HasElevation bool
}

func (f Fix) position() Position {
	return Position{
		Latitude:     f.Latitude,
		Longitude:    f.Longitude,
		Elevation:    f.Elevation,
		HasElevation: f.HasElevation,
	}
}

// Interpolate returns the position at instant at, linearly interpolating
// latitude, longitude and elevation between the two bracketing fixes.
//
// Linear interpolation ignores great-circle curvature and longitude
// wraparound; consecutive fixes are seconds to minutes apart.
func (t *Track) Interpolate(at time.Time) (Position, error) {
	if len(t.fixes) == 0 {
		return Position{}, ErrEmptyTrack
	}

	earliest, latest := t.Bounds()
	if at.Before(earliest) || at.After(latest) {
		return Position{}, &RangeError{At: at.UTC(), Earliest: earliest, Latest: latest}
	}

	// First fix not before at. Exists because at <= latest.
	i := sort.Search(len(t.fixes), func(i int) bool {
		return !t.fixes[i].Time.Before(at)
	})
	after := t.fixes[i]
	if after.Time.Equal(at) {
		return after.position(), nil
	}

	// i > 0 here: at > earliest, so fixes[i-1].Time < at < after.Time.
	before := t.fixes[i-1]
	frac := float64(at.Sub(before.Time)) / float64(after.Time.Sub(before.Time))

	pos := Position{
		Latitude:  lerp(before.Latitude, after.Latitude, frac),
		Longitude: lerp(before.Longitude, after.Longitude, frac),
	}
	if before.HasElevation && after.HasElevation {
		pos.Elevation = lerp(before.Elevation, after.Elevation, frac)
		pos.HasElevation = true
	}
	return pos, nil
}

func lerp(a, b, frac float64) float64 {
	return a + frac*(b-a)
}
