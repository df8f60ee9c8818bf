package photo

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
)

func sampleImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, sampleImage(), nil); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, sampleImage()); err != nil {
		t.Fatal(err)
	}
}

func TestWriteTagsRoundTrip(t *testing.T) {
	captured := time.Date(2023, 6, 16, 14, 10, 10, 0, time.UTC)
	fixTime := time.Date(2023, 6, 16, 4, 10, 0, 0, time.UTC)

	tests := []struct {
		name   string
		file   string
		encode func(*testing.T, string)
		lat    float64
		lon    float64
	}{
		{"jpeg north east", "a.jpg", writeJPEG, 27.4698, 153.0251},
		{"jpeg south west", "b.jpeg", writeJPEG, -33.856784, -70.651733},
		{"png north east", "c.png", writePNG, 47.6062, 122.3321},
		{"png south west", "d.png", writePNG, -0.000123, -179.999999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			tt.encode(t, path)

			tags := Tags{
				GPS: &GPS{
					Latitude:     tt.lat,
					Longitude:    tt.lon,
					Elevation:    12.5,
					HasElevation: true,
					Time:         fixTime,
				},
				Captured: captured,
				Make:     "Olympus",
				Model:    "TG-6",
			}
			if err := WriteTags(path, tags); err != nil {
				t.Fatalf("WriteTags: %v", err)
			}

			c, err := ReadCapture(path)
			if err != nil {
				t.Fatalf("ReadCapture: %v", err)
			}
			if !c.Time.Equal(captured) {
				t.Fatalf("capture time = %v, want %v", c.Time, captured)
			}
			if got := c.Platform(); got != "Olympus TG-6" {
				t.Fatalf("platform = %q", got)
			}

			lat, lon, ok, err := ReadLocation(path)
			if err != nil || !ok {
				t.Fatalf("ReadLocation: ok=%v err=%v", ok, err)
			}
			if math.Abs(lat-tt.lat) > 1e-6 || math.Abs(lon-tt.lon) > 1e-6 {
				t.Fatalf("location = (%v, %v), want (%v, %v)", lat, lon, tt.lat, tt.lon)
			}
		})
	}
}

func TestWriteTagsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.jpg")
	writeJPEG(t, path)

	first := Tags{GPS: &GPS{Latitude: 10, Longitude: 20}, Make: "Sony", Model: "RX100"}
	if err := WriteTags(path, first); err != nil {
		t.Fatal(err)
	}
	second := Tags{GPS: &GPS{Latitude: -45.5, Longitude: 170.25}}
	if err := WriteTags(path, second); err != nil {
		t.Fatal(err)
	}

	lat, lon, ok, err := ReadLocation(path)
	if err != nil || !ok {
		t.Fatalf("ReadLocation: ok=%v err=%v", ok, err)
	}
	if math.Abs(lat+45.5) > 1e-6 || math.Abs(lon-170.25) > 1e-6 {
		t.Fatalf("location = (%v, %v)", lat, lon)
	}

	// Fields not present in the second write survive.
	c, err := ReadCapture(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Platform() != "Sony RX100" {
		t.Fatalf("platform = %q", c.Platform())
	}
}

func TestWriteTagsReplacesGPSBlock(t *testing.T) {
	for _, name := range []string{"retag.jpg", "retag.png"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if filepath.Ext(name) == ".png" {
				writePNG(t, path)
			} else {
				writeJPEG(t, path)
			}

			old := &GPS{
				Latitude:     51.5,
				Longitude:    -0.12,
				Elevation:    500,
				HasElevation: true,
				Time:         time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
			}
			if err := WriteTags(path, Tags{GPS: old}); err != nil {
				t.Fatal(err)
			}
			if err := WriteTags(path, Tags{GPS: &GPS{Latitude: -27.1, Longitude: 153.2}}); err != nil {
				t.Fatal(err)
			}

			lat, lon, ok, err := ReadLocation(path)
			if err != nil || !ok {
				t.Fatalf("ReadLocation: ok=%v err=%v", ok, err)
			}
			if math.Abs(lat+27.1) > 1e-6 || math.Abs(lon-153.2) > 1e-6 {
				t.Fatalf("location = (%v, %v)", lat, lon)
			}

			x, err := decodeExif(path)
			if err != nil || x == nil {
				t.Fatalf("decodeExif: %v", err)
			}
			for _, field := range []exif.FieldName{exif.GPSAltitude, exif.GPSAltitudeRef, exif.GPSDateStamp, exif.GPSTimeStamp} {
				if tag, err := x.Get(field); err == nil {
					t.Errorf("%s left over from earlier fix: %v", field, tag)
				}
			}
		})
	}
}

func TestReadCaptureDamagedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cut.jpg")
	writeJPEG(t, path)
	if err := WriteTags(path, Tags{Captured: time.Date(2023, 6, 16, 14, 10, 10, 0, time.UTC)}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:30], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCapture(path); err == nil {
		t.Fatal("truncated jpeg read without error")
	}

	junk := filepath.Join(dir, "junk.jpg")
	if err := os.WriteFile(junk, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCapture(junk); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestReadCaptureWithoutExif(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plain.jpg", "plain.png"} {
		path := filepath.Join(dir, name)
		if filepath.Ext(name) == ".png" {
			writePNG(t, path)
		} else {
			writeJPEG(t, path)
		}

		c, err := ReadCapture(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !c.Time.IsZero() || c.Platform() != "Unknown" {
			t.Fatalf("%s: capture = %+v", name, c)
		}
		if _, _, ok, _ := ReadLocation(path); ok {
			t.Fatalf("%s: unexpected location", name)
		}
	}
}

func TestWriteTagsUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := WriteTags(path, Tags{Make: "x"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTagsMerge(t *testing.T) {
	base := Tags{Make: "Canon", Artist: "A. Diver"}
	got := base.Merge(Tags{Model: "G7X", Artist: "B. Diver", GPS: &GPS{Latitude: 1}})
	if got.Make != "Canon" || got.Model != "G7X" || got.Artist != "B. Diver" {
		t.Fatalf("merged = %+v", got)
	}
	if got.GPS == nil || got.GPS.Latitude != 1 {
		t.Fatalf("merged GPS = %+v", got.GPS)
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	export := filepath.Join(root, "export")
	files := []string{
		"a.JPG",
		"b.png",
		"notes.txt",
		filepath.Join("dive1", "c.jpeg"),
		filepath.Join("export", "old.jpg"),
	}
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := List(zerolog.Nop(), root, export)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "a.JPG"),
		filepath.Join(root, "b.png"),
		filepath.Join(root, "dive1", "c.jpeg"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}

	if _, err := List(zerolog.Nop(), filepath.Join(root, "a.JPG")); err == nil {
		t.Fatal("expected error listing a file")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	if err := os.WriteFile(src, []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "dst.jpg")
	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("copied %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Fatalf("mtime = %v, want %v", info.ModTime(), mtime)
	}

	sum, err := HashFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"; sum != want {
		t.Fatalf("sha256 = %s", sum)
	}
}
