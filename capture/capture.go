package capture

import (
	"fmt"
	"time"
)

// Frame is a single captured screen image handed to the pipeline. The
// pipeline never schedules capture itself; frames arrive from an external
// capture component at whatever cadence it chooses.
type Frame struct {
	// ID is a caller-provided identifier that is echoed through recognition
	// results, detected events and evidence links.
	ID string
	// Image is the encoded image payload in the format specified by Format.
	Image []byte
	// Format declares the image content type (e.g., image/png).
	Format ImageFormat
	// CapturedAt is the capture timestamp assigned by the capture component.
	CapturedAt time.Time
	// Display identifies the monitor the frame was captured from. Zero for
	// single-monitor setups.
	Display int
	// Context describes the foreground application at capture time.
	Context ApplicationContext
}

// ImageFormat identifies the content type of a frame image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// ApplicationContext describes the foreground application when a frame was
// captured. It is owned by the caller and read-only to the pipeline.
type ApplicationContext struct {
	// AppIdentifier is the stable bundle/package identifier, e.g.
	// "com.google.Chrome".
	AppIdentifier string
	// AppName is the human-readable application name.
	AppName string
	// WindowTitle is the title of the focused window.
	WindowTitle string
	// ProcessID is the OS process id of the application.
	ProcessID int
	// Timestamp is when the context was sampled.
	Timestamp time.Time
	// Metadata carries capture-side extras (monitor name, workspace, ...).
	Metadata map[string]string
}

// Key returns the context key used to correlate successive frames of the
// same logical surface. Frames sharing a key are diffed against each other
// by the event detector.
func (c ApplicationContext) Key() string {
	return fmt.Sprintf("%s\x00%s", c.AppIdentifier, c.WindowTitle)
}
