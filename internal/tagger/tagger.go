// Package tagger decides, per image, whether and where to geotag it.
package tagger

import (
	"fmt"
	"time"

	"github.com/electronjoe/gpstag/internal/clock"
	"github.com/electronjoe/gpstag/internal/photo"
	"github.com/electronjoe/gpstag/internal/track"
)

// Status is the outcome of tagging one image.
type Status int

const (
	Tagged Status = iota + 1
	Skipped
)

func (s Status) String() string {
	switch s {
	case Tagged:
		return "tagged"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Reason explains a Skipped result.
type Reason int

const (
	NoReason Reason = iota
	OutOfTrackRange
	MissingTimestamp
)

func (r Reason) String() string {
	switch r {
	case NoReason:
		return ""
	case OutOfTrackRange:
		return "OUT_OF_TRACK_RANGE"
	case MissingTimestamp:
		return "MISSING_TIMESTAMP"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Result is the tagging decision for one image. Position is set only when
// Status is Tagged and Reason only when it is Skipped. Corrected is set
// whenever the image had a timestamp.
type Result struct {
	Status    Status
	Reason    Reason
	Position  track.Position
	Corrected time.Time
}

// Tags returns base with the GPS block for a tagged result applied on top.
// A skipped result returns base unchanged.
func (r Result) Tags(base photo.Tags) photo.Tags {
	if r.Status != Tagged {
		return base
	}
	return base.Merge(photo.Tags{
		GPS: &photo.GPS{
			Latitude:     r.Position.Latitude,
			Longitude:    r.Position.Longitude,
			Elevation:    r.Position.Elevation,
			HasElevation: r.Position.HasElevation,
			Time:         r.Corrected,
		},
	})
}

// Tagger holds the track and clock offset shared by every image of a batch.
type Tagger struct {
	trk *track.Track
	off clock.Offset
}

// New returns a Tagger for trk corrected by off.
func New(trk *track.Track, off clock.Offset) (*Tagger, error) {
	if trk == nil || trk.Len() == 0 {
		return nil, track.ErrEmptyTrack
	}
	return &Tagger{trk: trk, off: off}, nil
}

// TagImage maps an embedded capture timestamp to a position. A zero
// timestamp means the image carried none.
func (t *Tagger) TagImage(embedded time.Time) Result {
	if embedded.IsZero() {
		return Result{Status: Skipped, Reason: MissingTimestamp}
	}

	corrected := t.off.Correct(embedded)
	pos, err := t.trk.Interpolate(corrected)
	if err != nil {
		// New rules out ErrEmptyTrack, so this is ErrOutOfTrackRange.
		return Result{Status: Skipped, Reason: OutOfTrackRange, Corrected: corrected}
	}
	return Result{Status: Tagged, Position: pos, Corrected: corrected}
}

// Offset returns the clock offset applied to every image.
func (t *Tagger) Offset() clock.Offset { return t.off }

// Track returns the track positions are interpolated from.
func (t *Tagger) Track() *track.Track { return t.trk }
