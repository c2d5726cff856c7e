// Package app runs the capture, detect, render and display loop.
package app

import (
	"errors"
	"time"

	"github.com/ayusman/handrig/internal/capture"
	"github.com/ayusman/handrig/internal/detector"
	"github.com/ayusman/handrig/internal/display"
	"github.com/ayusman/handrig/internal/render"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// KeyDelayMs is how long the loop waits for a key press after each frame.
const KeyDelayMs = 1

// ErrCameraOpen is returned by Run when the camera cannot be opened.
var ErrCameraOpen = errors.New("camera could not be opened")

// Config holds configuration options for the application.
type Config struct {
	CameraID int
	MaxHands int
	// MotionThreshold is the percentage of changed pixels below which the
	// previous detection result is reused. Zero disables the gate.
	MotionThreshold float64
	Style           render.Style
}

// DefaultConfig returns the configuration of the plain viewer.
func DefaultConfig() Config {
	return Config{
		MaxHands: 2,
		Style:    render.DefaultStyle(),
	}
}

// Sink receives every annotated frame, e.g. to stream it over HTTP.
// Publish must not keep frame or block the loop.
type Sink interface {
	Publish(frame gocv.Mat, hands []detector.HandLandmarks, frameIndex int)
}

// Recorder persists detection results. Close is called once when the loop ends.
type Recorder interface {
	Record(frameIndex int, at time.Time, hands []detector.HandLandmarks) error
	Close() error
}

// Stats summarizes a run.
type Stats struct {
	Frames          int
	FramesWithHands int
	DetectorErrors  int
	// Reused counts frames where the motion gate skipped the detector.
	Reused int
}

// App wires a camera, a detector and a display together.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	display  display.Display
	motion   *capture.MotionDetector
	sink     Sink
	recorder Recorder
	log      logrus.FieldLogger

	lastHands []detector.HandLandmarks
	stats     Stats
}

// New creates an App. The App owns camera, det and disp from here on and
// closes them when Run returns.
func New(config Config, camera capture.Camera, det detector.Detector, disp display.Display, log logrus.FieldLogger) *App {
	a := &App{
		config:   config,
		camera:   camera,
		detector: det,
		display:  disp,
		log:      log,
	}
	if config.Style == (render.Style{}) {
		a.config.Style = render.DefaultStyle()
	}
	if config.MotionThreshold > 0 {
		a.motion = capture.NewMotionDetector(config.MotionThreshold)
	}
	return a
}

// SetSink sets where annotated frames are published. nil disables publishing.
func (a *App) SetSink(s Sink) {
	a.sink = s
}

// SetRecorder sets the recorder for detection results. The App closes it
// when Run returns.
func (a *App) SetRecorder(r Recorder) {
	a.recorder = r
}

// Stats returns the counters of the last run.
func (a *App) Stats() Stats {
	return a.stats
}

// release closes everything the App owns. Errors are logged, not returned.
func (a *App) release() {
	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing camera")
	}
	if err := a.display.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing display")
	}
	if err := a.detector.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing detector")
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.WithError(err).Warn("Error closing recorder")
		}
	}
	if a.motion != nil {
		a.motion.Close()
	}
}
