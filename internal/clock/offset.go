// Package clock reconciles a camera's internal clock with GPS time.
//
// Camera timestamps are naive wall-clock readings. Two corrections map them
// onto the GPS time axis: a drift, measured from a reference photo of the
// GPS unit's display, and a declared timezone for the camera's clock.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// Offset is the correction applied to every embedded capture timestamp of a
// batch. Drift is camera time minus true time, both read as wall clocks in
// Zone.
type Offset struct {
	Drift time.Duration
	Zone  TimezoneCorrection
}

// FromReferencePhoto measures drift from a reference photo.
//
// photoCapture is the reference photo's embedded timestamp; its location is
// ignored. knownTrue is the instant shown on the GPS display when the photo
// was taken (see ParseWallClock). zone is the camera's timezone.
func FromReferencePhoto(photoCapture, knownTrue time.Time, zone TimezoneCorrection) Offset {
	cameraWall := WallClock(photoCapture).Truncate(time.Second)
	trueWall := WallClock(knownTrue.In(zone.Location())).Truncate(time.Second)
	return Offset{
		Drift: cameraWall.Sub(trueWall),
		Zone:  zone,
	}
}

// FromDeclaredOffset assumes the camera clock is accurate and only differs
// from GPS time by the declared timezone.
func FromDeclaredOffset(zone TimezoneCorrection) Offset {
	return Offset{Zone: zone}
}

// Correct maps an embedded capture timestamp to a UTC instant.
func (o Offset) Correct(embedded time.Time) time.Time {
	wall := WallClock(embedded).Add(-o.Drift)
	return wall.Add(-o.Zone.Offset()).UTC()
}

func (o Offset) String() string {
	return fmt.Sprintf("drift %s, camera UTC%s", o.Drift, o.Zone)
}

// WallClock returns t's calendar fields reinterpreted in UTC, discarding
// its location.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

var clockLayouts = []string{"15:04:05", "15:04"}

// ParseWallClock reads a date ("2006-01-02") and time ("15:04:05" or
// "15:04") as displayed by a device set to zone.
func ParseWallClock(date, clock string, zone TimezoneCorrection) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	var lastErr error
	for _, layout := range clockLayouts {
		t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+clock, zone.Location())
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse date/time %q %q: %w", date, clock, lastErr)
}
