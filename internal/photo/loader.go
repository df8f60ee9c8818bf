package photo

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	dexif "github.com/dsoprea/go-exif/v3"
	dlog "github.com/dsoprea/go-logging"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// Capture is the metadata the tagger needs from one image.
type Capture struct {
	// Time is the embedded capture wall clock in UTC location; zero when the
	// image carries no timestamp.
	Time  time.Time
	Make  string
	Model string
}

// Platform returns "Make Model", or "Unknown" when either is missing.
func (c Capture) Platform() string {
	if c.Make == "" || c.Model == "" {
		return "Unknown"
	}
	return c.Make + " " + c.Model
}

// List walks root and returns every image file below it in lexical order.
// Directories listed in exclude are not descended into.
func List(logger zerolog.Logger, root string, exclude ...string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat import directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import path %s is not a directory", root)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, dir := range exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = struct{}{}
		}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("error accessing path")
			// Skip this file/dir but keep walking
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if abs, err := filepath.Abs(path); err == nil {
				if _, ok := skip[abs]; ok {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if IsImageFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

// IsImageFile checks for the supported image extensions.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// ReadCapture reads the capture timestamp and camera make/model. An image
// without EXIF yields a zero Capture and no error.
func ReadCapture(path string) (Capture, error) {
	x, err := decodeExif(path)
	if err != nil || x == nil {
		return Capture{}, err
	}

	c := Capture{
		Make:  tagString(x, exif.Make),
		Model: tagString(x, exif.Model),
	}

	// DateTimeOriginal is the creation time; DateTime is the modtime.
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		s := tagString(x, name)
		if s == "" {
			continue
		}
		if t, err := time.Parse(exifTimeLayout, s); err == nil {
			c.Time = t
			break
		}
	}
	return c, nil
}

// ReadLocation returns the GPS position recorded in an image.
func ReadLocation(path string) (lat, lon float64, ok bool, err error) {
	x, err := decodeExif(path)
	if err != nil || x == nil {
		return 0, 0, false, err
	}
	lat, lon, err = x.LatLong()
	if err != nil {
		return 0, 0, false, nil
	}
	return lat, lon, true, nil
}

// decodeExif returns nil, nil when the file holds no EXIF block. A block
// that is present but cannot be decoded, or a damaged container, is an
// error.
func decodeExif(path string) (*exif.Exif, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	var raw []byte
	switch {
	case isPNG(data):
		raw, err = pngExif(data)
	case isJPEG(data):
		raw, err = jpegExif(data)
	default:
		err = fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil || raw == nil {
		return nil, err
	}

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("decode exif: %w", err)
	}
	return x, nil
}

// jpegExif returns the whole file when it carries an EXIF segment, nil
// when it has none.
func jpegExif(data []byte) ([]byte, error) {
	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	sl := mc.(*jpegstructure.SegmentList)

	if _, _, err := sl.FindExif(); err != nil {
		if dlog.Is(err, dexif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("find jpeg exif segment: %w", err)
	}
	return data, nil
}

func pngExif(data []byte) ([]byte, error) {
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse png: %w", err)
	}
	cs := mc.(*pngstructure.ChunkSlice)

	chunk, err := cs.FindExif()
	if err != nil {
		if dlog.Is(err, dexif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("find png exif chunk: %w", err)
	}
	return chunk.Data, nil
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func isPNG(data []byte) bool {
	return bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n"))
}

func isJPEG(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xD8})
}
