// Package display shows annotated frames and polls for key presses.
package display

import (
	"time"

	"gocv.io/x/gocv"
)

// DefaultTitle is the window title used by the hand viewer.
const DefaultTitle = "Hand Detection - Press Q to Quit"

// NoKey is returned by WaitKey when no key was pressed.
const NoKey = -1

// Display is where annotated frames end up.
type Display interface {
	// Show presents a frame. The display does not keep a reference to it.
	Show(frame gocv.Mat)
	// WaitKey waits up to delayMs milliseconds for a key press and returns
	// its code, or NoKey.
	WaitKey(delayMs int) int
	Close() error
}

// Window is a Display backed by an OpenCV highgui window.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

func (w *Window) Show(frame gocv.Mat) {
	w.window.IMShow(frame)
}

// WaitKey returns the low byte of the pressed key, matching what OpenCV
// reports across platforms.
func (w *Window) WaitKey(delayMs int) int {
	key := w.window.WaitKey(delayMs)
	if key < 0 {
		return NoKey
	}
	return key & 0xFF
}

func (w *Window) Close() error {
	return w.window.Close()
}

// Headless discards frames. WaitKey sleeps for the delay so a headless loop
// does not spin faster than a windowed one.
type Headless struct {
	shown int
}

// NewHeadless returns a Display without a window.
func NewHeadless() *Headless {
	return &Headless{}
}

func (h *Headless) Show(frame gocv.Mat) {
	h.shown++
}

func (h *Headless) WaitKey(delayMs int) int {
	if delayMs > 0 {
		time.Sleep(time.Duration(delayMs) * time.Millisecond)
	}
	return NoKey
}

func (h *Headless) Close() error {
	return nil
}

// Shown returns how many frames were passed to Show.
func (h *Headless) Shown() int {
	return h.shown
}
