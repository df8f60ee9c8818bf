package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	minOffset = -12 * time.Hour
	maxOffset = 14 * time.Hour
)

// StandardOffsets are the UTC offsets offered to users picking a camera or
// GPS display timezone.
var StandardOffsets = []string{
	"UTC-12:00", "UTC-11:00", "UTC-10:00", "UTC-09:30", "UTC-09:00", "UTC-08:00",
	"UTC-07:00", "UTC-06:00", "UTC-05:00", "UTC-04:00", "UTC-03:30", "UTC-03:00",
	"UTC-02:30", "UTC-02:00", "UTC-01:00", "UTC+00:00", "UTC+01:00", "UTC+02:00",
	"UTC+03:00", "UTC+03:30", "UTC+04:00", "UTC+04:30", "UTC+05:00", "UTC+05:30",
	"UTC+05:45", "UTC+06:00", "UTC+06:30", "UTC+07:00", "UTC+08:00", "UTC+08:45",
	"UTC+09:00", "UTC+09:30", "UTC+10:00", "UTC+10:30", "UTC+11:00", "UTC+12:00",
	"UTC+12:45", "UTC+13:00", "UTC+13:45", "UTC+14:00",
}

// TimezoneCorrection is a fixed UTC offset with minute resolution. The zero
// value is UTC.
type TimezoneCorrection struct {
	offset time.Duration
}

// UTC is the zero correction.
var UTC = TimezoneCorrection{}

// FixedOffset returns the correction for offset d east of UTC.
func FixedOffset(d time.Duration) (TimezoneCorrection, error) {
	if d%time.Minute != 0 {
		return TimezoneCorrection{}, fmt.Errorf("timezone offset %v is not a whole number of minutes", d)
	}
	if d < minOffset || d > maxOffset {
		return TimezoneCorrection{}, fmt.Errorf("timezone offset %v outside %v..%v", d, minOffset, maxOffset)
	}
	return TimezoneCorrection{offset: d}, nil
}

// ParseTimezone accepts "+10:00", "-0930", "+5", "UTC+05:45", "UTC", "Z"
// and the empty string (UTC).
func ParseTimezone(s string) (TimezoneCorrection, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(strings.TrimPrefix(strings.ToUpper(v), "UTC"), "GMT")
	if v == "" || v == "Z" {
		return UTC, nil
	}

	var sign time.Duration
	switch v[0] {
	case '+':
		sign = 1
	case '-':
		sign = -1
	default:
		return TimezoneCorrection{}, fmt.Errorf("parse timezone %q: missing sign", s)
	}
	v = v[1:]

	var hh, mm string
	switch {
	case strings.Contains(v, ":"):
		hh, mm, _ = strings.Cut(v, ":")
	case len(v) == 4:
		hh, mm = v[:2], v[2:]
	default:
		hh, mm = v, "0"
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 {
		return TimezoneCorrection{}, fmt.Errorf("parse timezone %q: bad hours", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimezoneCorrection{}, fmt.Errorf("parse timezone %q: bad minutes", s)
	}

	z, err := FixedOffset(sign * (time.Duration(h)*time.Hour + time.Duration(m)*time.Minute))
	if err != nil {
		return TimezoneCorrection{}, fmt.Errorf("parse timezone %q: %w", s, err)
	}
	return z, nil
}

// ZoneFromLocation resolves an IANA zone name to the fixed offset in
// effect at instant at.
func ZoneFromLocation(name string, at time.Time) (TimezoneCorrection, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return TimezoneCorrection{}, fmt.Errorf("load location %q: %w", name, err)
	}
	_, secs := at.In(loc).Zone()
	return FixedOffset(time.Duration(secs) * time.Second)
}

// Offset returns the correction as a duration east of UTC.
func (z TimezoneCorrection) Offset() time.Duration { return z.offset }

// Location returns a fixed *time.Location for the correction.
func (z TimezoneCorrection) Location() *time.Location {
	return time.FixedZone("UTC"+z.String(), int(z.offset/time.Second))
}

// String formats the correction as "+hh:mm".
func (z TimezoneCorrection) String() string {
	sign := '+'
	d := z.offset
	if d < 0 {
		sign = '-'
		d = -d
	}
	return fmt.Sprintf("%c%02d:%02d", sign, int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// MarshalText implements encoding.TextMarshaler.
func (z TimezoneCorrection) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (z *TimezoneCorrection) UnmarshalText(b []byte) error {
	parsed, err := ParseTimezone(string(b))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}
