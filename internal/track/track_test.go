package track

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const twoSegmentGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="gpstag-test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>dive 1</name>
    <trkseg>
      <trkpt lat="-27.4700" lon="153.0200"><ele>4.0</ele><time>2023-06-16T08:00:00Z</time></trkpt>
      <trkpt lat="-27.4710" lon="153.0210"><ele>6.0</ele><time>2023-06-16T08:01:00Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="-27.4720" lon="153.0220"><time>2023-06-16T08:02:00Z</time></trkpt>
    </trkseg>
  </trk>
  <trk>
    <trkseg>
      <trkpt lat="-27.4730" lon="153.0230"><ele>8.0</ele><time>2023-06-16T08:03:00Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestLoadFlattensTracksAndSegments(t *testing.T) {
	trk, err := Load(strings.NewReader(twoSegmentGPX))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if trk.Len() != 4 {
		t.Fatalf("expected 4 fixes, got %d", trk.Len())
	}

	fixes := trk.Fixes()
	if !fixes[0].HasElevation || fixes[0].Elevation != 4.0 {
		t.Fatalf("first fix elevation: %+v", fixes[0])
	}
	if fixes[2].HasElevation {
		t.Fatalf("third fix should have no elevation: %+v", fixes[2])
	}
	if fixes[3].Latitude != -27.4730 || fixes[3].Longitude != 153.0230 {
		t.Fatalf("last fix coordinates: %+v", fixes[3])
	}

	earliest, latest := trk.Bounds()
	if want := time.Date(2023, 6, 16, 8, 0, 0, 0, time.UTC); !earliest.Equal(want) {
		t.Fatalf("earliest = %v, want %v", earliest, want)
	}
	if want := time.Date(2023, 6, 16, 8, 3, 0, 0, time.UTC); !latest.Equal(want) {
		t.Fatalf("latest = %v, want %v", latest, want)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		gpx  string
	}{
		{"empty", ""},
		{"not xml", "this is not a track"},
		{"no points", `<gpx version="1.1" creator="x" xmlns="http://www.topografix.com/GPX/1/1"></gpx>`},
		{"missing time", `<gpx version="1.1" creator="x" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>
			<trkpt lat="1" lon="1"></trkpt></trkseg></trk></gpx>`},
		{"out of order", `<gpx version="1.1" creator="x" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>
			<trkpt lat="1" lon="1"><time>2023-06-16T08:01:00Z</time></trkpt>
			<trkpt lat="2" lon="2"><time>2023-06-16T08:00:00Z</time></trkpt></trkseg></trk></gpx>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.gpx))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestLoadFileNamesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gpx")
	if err := os.WriteFile(path, []byte(`<gpx version="1.1" creator="x" xmlns="http://www.topografix.com/GPX/1/1"></gpx>`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Source != path {
		t.Fatalf("source = %q, want %q", pe.Source, path)
	}
	if !errors.Is(err, ErrEmptyTrack) {
		t.Fatalf("expected ErrEmptyTrack, got %v", err)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.gpx")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewRejectsInvalidCoordinates(t *testing.T) {
	_, err := New([]Fix{{Time: time.Now(), Latitude: 91, Longitude: 0}})
	if err == nil {
		t.Fatal("expected error for latitude 91")
	}
}

func TestNewCopiesInput(t *testing.T) {
	fixes := []Fix{{Time: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Latitude: 1, Longitude: 2}}
	trk, err := New(fixes)
	if err != nil {
		t.Fatal(err)
	}
	fixes[0].Latitude = 50
	if got := trk.Fixes()[0].Latitude; got != 1 {
		t.Fatalf("track mutated through input slice: latitude %v", got)
	}
}
