package photo

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	dexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	dlog "github.com/dsoprea/go-logging"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

// ErrUnsupportedFormat is returned for files that are neither JPEG nor PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// GPS is the geolocation block written into an image.
type GPS struct {
	Latitude     float64
	Longitude    float64
	Elevation    float64
	HasElevation bool
	// Time is the UTC fix time; zero leaves GPSDateStamp/GPSTimeStamp unset.
	Time time.Time
}

// Tags is a set of metadata to write. Empty fields are left untouched.
type Tags struct {
	GPS       *GPS
	Captured  time.Time
	Make      string
	Model     string
	Artist    string
	Copyright string
}

// Merge returns t with every non-empty field of over applied on top.
func (t Tags) Merge(over Tags) Tags {
	if over.GPS != nil {
		g := *over.GPS
		t.GPS = &g
	}
	if !over.Captured.IsZero() {
		t.Captured = over.Captured
	}
	if over.Make != "" {
		t.Make = over.Make
	}
	if over.Model != "" {
		t.Model = over.Model
	}
	if over.Artist != "" {
		t.Artist = over.Artist
	}
	if over.Copyright != "" {
		t.Copyright = over.Copyright
	}
	return t
}

// WriteTags rewrites the image at path in place with tags applied. All
// other metadata already present in the file is preserved.
func WriteTags(path string, tags Tags) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}

	var out []byte
	switch {
	case isJPEG(data):
		out, err = rewriteJPEG(data, tags)
	case isPNG(data):
		out, err = rewritePNG(data, tags)
	default:
		err = fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return err
	}

	return writeFileAtomic(path, out, info.Mode().Perm())
}

func rewriteJPEG(data []byte, tags Tags) ([]byte, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	sl := mc.(*jpegstructure.SegmentList)

	rootIb, err := rootBuilder(sl.ConstructExifBuilder)
	if err != nil {
		return nil, err
	}
	if err := applyTags(rootIb, tags); err != nil {
		return nil, err
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("set jpeg exif: %w", err)
	}

	b := new(bytes.Buffer)
	if err := sl.Write(b); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return b.Bytes(), nil
}

func rewritePNG(data []byte, tags Tags) ([]byte, error) {
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse png: %w", err)
	}
	cs := mc.(*pngstructure.ChunkSlice)

	rootIb, err := rootBuilder(cs.ConstructExifBuilder)
	if err != nil {
		return nil, err
	}
	if err := applyTags(rootIb, tags); err != nil {
		return nil, err
	}
	if err := cs.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("set png exif: %w", err)
	}

	b := new(bytes.Buffer)
	if err := cs.WriteTo(b); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return b.Bytes(), nil
}

// rootBuilder returns the IFD0 builder of an existing EXIF block, or a fresh
// one when the image has none.
func rootBuilder(construct func() (*dexif.IfdBuilder, error)) (*dexif.IfdBuilder, error) {
	rootIb, err := construct()
	if err == nil {
		return rootIb, nil
	}
	if !dlog.Is(err, dexif.ErrNoExif) {
		return nil, fmt.Errorf("read existing exif: %w", err)
	}

	im := exifcommon.NewIfdMapping()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return nil, fmt.Errorf("load standard ifds: %w", err)
	}
	ti := dexif.NewTagIndex()
	return dexif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

func applyTags(rootIb *dexif.IfdBuilder, tags Tags) error {
	for _, s := range []tagValue{
		{"Make", tags.Make},
		{"Model", tags.Model},
		{"Artist", tags.Artist},
		{"Copyright", tags.Copyright},
	} {
		if s.value == "" {
			continue
		}
		if err := rootIb.SetStandardWithName(s.name, s.value); err != nil {
			return fmt.Errorf("set %s: %w", s.name, err)
		}
	}

	if !tags.Captured.IsZero() {
		exifIb, err := dexif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
		if err != nil {
			return fmt.Errorf("get exif ifd: %w", err)
		}
		if err := exifIb.SetStandardWithName("DateTimeOriginal", tags.Captured.Format(exifTimeLayout)); err != nil {
			return fmt.Errorf("set DateTimeOriginal: %w", err)
		}
	}

	if tags.GPS != nil {
		gpsIb, err := dexif.GetOrCreateIbFromRootIb(rootIb, "IFD/GPSInfo")
		if err != nil {
			return fmt.Errorf("get gps ifd: %w", err)
		}
		if err := setGPS(gpsIb, *tags.GPS); err != nil {
			return err
		}
	}
	return nil
}

type tagValue struct {
	name  string
	value interface{}
}

// lastGPSTagID is GPSHPositioningError, the highest tag of the GPS IFD.
const lastGPSTagID = 0x001f

// setGPS replaces the whole GPS IFD with g, so no field of an earlier fix
// survives next to the new one.
func setGPS(ib *dexif.IfdBuilder, g GPS) error {
	for id := uint16(0); id <= lastGPSTagID; id++ {
		if _, err := ib.DeleteAll(id); err != nil {
			return fmt.Errorf("clear gps tag 0x%04x: %w", id, err)
		}
	}

	latRef, lonRef := "N", "E"
	if g.Latitude < 0 {
		latRef = "S"
	}
	if g.Longitude < 0 {
		lonRef = "W"
	}

	values := []tagValue{
		{"GPSVersionID", []byte{2, 3, 0, 0}},
		{"GPSLatitudeRef", latRef},
		{"GPSLatitude", degreesToRationals(g.Latitude)},
		{"GPSLongitudeRef", lonRef},
		{"GPSLongitude", degreesToRationals(g.Longitude)},
	}
	if g.HasElevation {
		var ref byte
		if g.Elevation < 0 {
			ref = 1
		}
		values = append(values,
			tagValue{"GPSAltitudeRef", []byte{ref}},
			tagValue{"GPSAltitude", []exifcommon.Rational{{Numerator: uint32(math.Round(math.Abs(g.Elevation) * 100)), Denominator: 100}}},
		)
	}
	if !g.Time.IsZero() {
		u := g.Time.UTC()
		values = append(values,
			tagValue{"GPSDateStamp", u.Format("2006:01:02")},
			tagValue{"GPSTimeStamp", []exifcommon.Rational{
				{Numerator: uint32(u.Hour()), Denominator: 1},
				{Numerator: uint32(u.Minute()), Denominator: 1},
				{Numerator: uint32(u.Second()), Denominator: 1},
			}},
		)
	}

	for _, v := range values {
		if err := ib.SetStandardWithName(v.name, v.value); err != nil {
			return fmt.Errorf("set %s: %w", v.name, err)
		}
	}
	return nil
}

// secondsScale gives 1e-4 arc-second resolution, about 3 nanodegrees.
const secondsScale = 10000

// degreesToRationals encodes |deg| as EXIF degrees/minutes/seconds.
func degreesToRationals(deg float64) []exifcommon.Rational {
	total := uint64(math.Round(math.Abs(deg) * 3600 * secondsScale))
	d := total / (3600 * secondsScale)
	total -= d * 3600 * secondsScale
	m := total / (60 * secondsScale)
	s := total - m*60*secondsScale
	return []exifcommon.Rational{
		{Numerator: uint32(d), Denominator: 1},
		{Numerator: uint32(m), Denominator: 1},
		{Numerator: uint32(s), Denominator: secondsScale},
	}
}
