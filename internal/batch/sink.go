package batch

import (
	"time"

	"github.com/electronjoe/gpstag/internal/photo"
	"github.com/electronjoe/gpstag/internal/track"
)

// Metadata reads capture metadata from source images and writes tags into
// exported copies. photo.Exif is the production implementation.
type Metadata interface {
	ReadCapture(path string) (photo.Capture, error)
	WriteTags(path string, tags photo.Tags) error
}

// IFDORecord describes one tagged image for an image FAIR digital object
// document.
type IFDORecord struct {
	// RelPath is relative to the export directory.
	RelPath   string
	Corrected time.Time
	Latitude  float64
	Longitude float64
	Platform  string
	// SHA256 is the hex digest of the exported, tagged copy.
	SHA256 string
}

// IFDOSink assembles an iFDO document from tagged images.
type IFDOSink interface {
	AddImage(IFDORecord) error
	Finalize() error
}

// KMLPoint is one placemark for a KML export.
type KMLPoint struct {
	// Path is the exported copy.
	Path     string
	Position track.Position
}

// KMLSink assembles a KML document from tagged images.
type KMLSink interface {
	AddPoint(KMLPoint) error
	Finalize() error
}
