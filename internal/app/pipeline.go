package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/handrig/internal/capture"
	"github.com/ayusman/handrig/internal/detector"
	"github.com/ayusman/handrig/internal/render"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// StopFunc decides after each frame whether the loop ends. frames is the
// number of frames shown so far and key the code returned by the display,
// or display.NoKey.
type StopFunc func(frames int, key int) bool

// QuitOnKey stops when key is pressed, in either case for letters.
func QuitOnKey(key rune) StopFunc {
	lower, upper := int(key), int(key)
	if key >= 'a' && key <= 'z' {
		upper = int(key - 'a' + 'A')
	} else if key >= 'A' && key <= 'Z' {
		lower = int(key - 'A' + 'a')
	}
	return func(_ int, pressed int) bool {
		return pressed == lower || pressed == upper
	}
}

// AfterFrames stops once n frames have been shown.
func AfterFrames(n int) StopFunc {
	return func(frames int, _ int) bool {
		return frames >= n
	}
}

// Any stops as soon as one of fns does.
func Any(fns ...StopFunc) StopFunc {
	return func(frames int, key int) bool {
		for _, fn := range fns {
			if fn(frames, key) {
				return true
			}
		}
		return false
	}
}

// Run opens the camera and processes frames until until returns true, the
// camera stops delivering frames, or ctx is cancelled. Everything the App
// owns is released before Run returns. Only a camera that cannot be opened
// is an error.
//
// Per frame:
// 1. Read a frame; a read error ends the stream
// 2. Detect hands, or reuse the last result when the scene is still
// 3. Draw the skeleton on a copy of the frame
// 4. Publish and record
// 5. Show the annotated frame and poll the keyboard
func (a *App) Run(ctx context.Context, until StopFunc) error {
	defer a.release()
	a.stats = Stats{}

	if err := a.camera.Open(); err != nil {
		a.log.WithError(err).WithField("camera", a.config.CameraID).Error("Failed to open camera")
		return fmt.Errorf("%w: %w", ErrCameraOpen, err)
	}
	a.log.WithField("camera", a.config.CameraID).Info("Camera opened")

	defer func() {
		a.log.WithFields(logrus.Fields{
			"frames":     a.stats.Frames,
			"with_hands": a.stats.FramesWithHands,
			"errors":     a.stats.DetectorErrors,
			"reused":     a.stats.Reused,
		}).Info("Capture loop finished")
	}()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Interrupted")
			return nil
		default:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				a.log.Info("Camera stream ended")
			} else {
				a.log.WithError(err).Warn("Error reading frame")
			}
			return nil
		}

		key := a.processFrame(frame)
		frame.Close()

		if until != nil && until(a.stats.Frames, key) {
			return nil
		}
	}
}

// processFrame handles one frame and returns the key polled afterwards.
func (a *App) processFrame(frame *gocv.Mat) int {
	index := a.stats.Frames
	now := time.Now()

	hands := a.detect(frame)
	if len(hands) > 0 {
		a.stats.FramesWithHands++
	}

	annotated := render.SkeletonWithStyle(*frame, hands, a.config.Style)
	defer annotated.Close()

	if a.sink != nil {
		a.sink.Publish(annotated, hands, index)
	}
	if a.recorder != nil {
		if err := a.recorder.Record(index, now, hands); err != nil {
			a.log.WithError(err).WithField("frame", index).Warn("Error recording frame")
		}
	}

	a.display.Show(annotated)
	a.stats.Frames++

	return a.display.WaitKey(KeyDelayMs)
}

// detect runs the detector on frame. A failed detection yields no hands so
// the frame is still shown, without overlay.
func (a *App) detect(frame *gocv.Mat) []detector.HandLandmarks {
	if a.motion != nil && a.lastHands != nil {
		if moved, _ := a.motion.Detect(frame); !moved {
			a.stats.Reused++
			return a.lastHands
		}
	} else if a.motion != nil {
		// Detection runs on this frame, so it becomes the motion reference.
		a.motion.Reset()
		a.motion.Detect(frame)
	}

	hands, err := a.detector.Detect(frame)
	if err != nil {
		a.stats.DetectorErrors++
		a.log.WithError(err).WithField("frame", a.stats.Frames).Warn("Error detecting hands")
		a.lastHands = nil
		return nil
	}
	if a.config.MaxHands > 0 && len(hands) > a.config.MaxHands {
		hands = hands[:a.config.MaxHands]
	}

	if hands == nil {
		hands = []detector.HandLandmarks{}
	}
	a.lastHands = hands
	return hands
}
