package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayusman/handrig/internal/capture"
	"github.com/ayusman/handrig/internal/detector"
	"github.com/ayusman/handrig/internal/display"
	"github.com/sirupsen/logrus/hooks/test"
	"gocv.io/x/gocv"
)

func newFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	t.Cleanup(func() {
		for _, m := range frames {
			m.Close()
		}
	})
	return frames
}

// scriptedDisplay returns queued key codes from WaitKey.
type scriptedDisplay struct {
	keys   []int
	shown  int
	closed int
}

func (d *scriptedDisplay) Show(frame gocv.Mat) { d.shown++ }

func (d *scriptedDisplay) WaitKey(delayMs int) int {
	if len(d.keys) == 0 {
		return display.NoKey
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *scriptedDisplay) Close() error {
	d.closed++
	return nil
}

type published struct {
	index    int
	hands    int
	nonBlack int
}

type fakeSink struct {
	got []published
}

func (s *fakeSink) Publish(frame gocv.Mat, hands []detector.HandLandmarks, frameIndex int) {
	data := frame.ToBytes()
	n := 0
	for _, b := range data {
		if b != 0 {
			n++
		}
	}
	s.got = append(s.got, published{index: frameIndex, hands: len(hands), nonBlack: n})
}

type fakeRecorder struct {
	indices []int
	closed  int
	err     error
}

func (r *fakeRecorder) Record(frameIndex int, at time.Time, hands []detector.HandLandmarks) error {
	r.indices = append(r.indices, frameIndex)
	return r.err
}

func (r *fakeRecorder) Close() error {
	r.closed++
	return nil
}

func palm() []detector.HandLandmarks {
	return []detector.HandLandmarks{detector.OpenPalmLandmarks()}
}

func TestRun_AfterFrames(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 2), true)
	det := detector.NewMockDetector()
	det.SetHands(palm())
	disp := display.NewHeadless()
	log, _ := test.NewNullLogger()

	a := New(DefaultConfig(), cam, det, disp, log)
	if err := a.Run(context.Background(), AfterFrames(5)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := a.Stats()
	if stats.Frames != 5 {
		t.Errorf("Frames = %d, want 5", stats.Frames)
	}
	if stats.FramesWithHands != 5 {
		t.Errorf("FramesWithHands = %d, want 5", stats.FramesWithHands)
	}
	if disp.Shown() != 5 {
		t.Errorf("display showed %d frames, want 5", disp.Shown())
	}
	if det.Calls() != 5 {
		t.Errorf("detector called %d times, want 5", det.Calls())
	}
	if cam.IsOpen() || cam.CloseCount() != 1 {
		t.Errorf("camera should be closed once, open=%v closes=%d", cam.IsOpen(), cam.CloseCount())
	}
	if !det.Closed() {
		t.Error("detector should be closed")
	}
}

func TestRun_EndOfStream(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 3), false)
	det := detector.NewMockDetector()
	disp := &scriptedDisplay{}
	log, _ := test.NewNullLogger()

	a := New(DefaultConfig(), cam, det, disp, log)
	if err := a.Run(context.Background(), QuitOnKey('q')); err != nil {
		t.Fatalf("end of stream should not be an error: %v", err)
	}

	if a.Stats().Frames != 3 {
		t.Errorf("Frames = %d, want 3", a.Stats().Frames)
	}
	if disp.closed != 1 {
		t.Errorf("display closed %d times, want 1", disp.closed)
	}
	if cam.CloseCount() != 1 {
		t.Errorf("camera closed %d times, want 1", cam.CloseCount())
	}
}

func TestRun_CameraOpenFailure(t *testing.T) {
	openErr := errors.New("no such device")
	cam := capture.NewMockCamera(newFrames(t, 1), true)
	cam.FailOpen(openErr)
	det := detector.NewMockDetector()
	disp := &scriptedDisplay{}
	rec := &fakeRecorder{}
	log, hook := test.NewNullLogger()

	a := New(DefaultConfig(), cam, det, disp, log)
	a.SetRecorder(rec)

	err := a.Run(context.Background(), QuitOnKey('q'))
	if !errors.Is(err, ErrCameraOpen) {
		t.Fatalf("Run() error = %v, want ErrCameraOpen", err)
	}
	if !errors.Is(err, openErr) {
		t.Errorf("Run() error = %v, should wrap the device error", err)
	}

	if disp.shown != 0 || det.Calls() != 0 {
		t.Errorf("loop should not run: shown=%d detect calls=%d", disp.shown, det.Calls())
	}
	if disp.closed != 1 || !det.Closed() || rec.closed != 1 {
		t.Errorf("resources not released: display=%d detector=%v recorder=%d", disp.closed, det.Closed(), rec.closed)
	}

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Failed to open camera" {
			logged = true
		}
	}
	if !logged {
		t.Error("camera failure should be logged")
	}
}

func TestRun_QuitOnKey(t *testing.T) {
	tests := []struct {
		name string
		keys []int
		want int
	}{
		{"lowercase", []int{display.NoKey, 'x', 'q'}, 3},
		{"uppercase", []int{'Q'}, 1},
		{"other keys ignored", []int{'a', 'b', 'c', 'q'}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := capture.NewMockCamera(newFrames(t, 1), true)
			disp := &scriptedDisplay{keys: tt.keys}
			log, _ := test.NewNullLogger()

			a := New(DefaultConfig(), cam, detector.NewMockDetector(), disp, log)
			if err := a.Run(context.Background(), QuitOnKey('q')); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if a.Stats().Frames != tt.want {
				t.Errorf("Frames = %d, want %d", a.Stats().Frames, tt.want)
			}
		})
	}
}

func TestRun_DetectorErrorShowsFrameWithoutOverlay(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 1), true)
	det := detector.NewMockDetector()
	det.SetHands(palm())
	det.SetError(errors.New("service crashed"))
	sink := &fakeSink{}
	log, _ := test.NewNullLogger()

	a := New(DefaultConfig(), cam, det, display.NewHeadless(), log)
	a.SetSink(sink)
	if err := a.Run(context.Background(), AfterFrames(3)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if a.Stats().DetectorErrors != 3 {
		t.Errorf("DetectorErrors = %d, want 3", a.Stats().DetectorErrors)
	}
	if len(sink.got) != 3 {
		t.Fatalf("published %d frames, want 3", len(sink.got))
	}
	for _, p := range sink.got {
		if p.hands != 0 || p.nonBlack != 0 {
			t.Errorf("frame %d should be shown untouched, hands=%d drawn bytes=%d", p.index, p.hands, p.nonBlack)
		}
	}
}

func TestRun_PublishesAnnotatedFrames(t *testing.T) {
	frames := newFrames(t, 1)
	cam := capture.NewMockCamera(frames, true)
	det := detector.NewMockDetector()
	det.Script(palm(), nil, palm())
	sink := &fakeSink{}
	log, _ := test.NewNullLogger()

	a := New(DefaultConfig(), cam, det, display.NewHeadless(), log)
	a.SetSink(sink)
	if err := a.Run(context.Background(), AfterFrames(3)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.got) != 3 {
		t.Fatalf("published %d frames, want 3", len(sink.got))
	}
	for i, p := range sink.got {
		if p.index != i {
			t.Errorf("publish %d has frame index %d", i, p.index)
		}
	}
	if sink.got[0].hands != 1 || sink.got[0].nonBlack == 0 {
		t.Errorf("frame 0 should carry a skeleton: %+v", sink.got[0])
	}
	if sink.got[1].hands != 0 || sink.got[1].nonBlack != 0 {
		t.Errorf("frame 1 has no hands and should be untouched: %+v", sink.got[1])
	}
	if a.Stats().FramesWithHands != 2 {
		t.Errorf("FramesWithHands = %d, want 2", a.Stats().FramesWithHands)
	}

	data := frames[0].ToBytes()
	for _, b := range data {
		if b != 0 {
			t.Fatal("source frame was drawn on")
		}
	}
}

func TestRun_MaxHands(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 1), true)
	det := detector.NewMockDetector()
	det.SetHands(append(palm(), palm()[0], palm()[0]))
	sink := &fakeSink{}
	log, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.MaxHands = 2
	a := New(cfg, cam, det, display.NewHeadless(), log)
	a.SetSink(sink)
	if err := a.Run(context.Background(), AfterFrames(1)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.got) != 1 || sink.got[0].hands != 2 {
		t.Errorf("published %+v, want one frame with 2 hands", sink.got)
	}
}

func TestRun_Recorder(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 1), true)
	det := detector.NewMockDetector()
	rec := &fakeRecorder{err: errors.New("disk full")}
	log, _ := test.NewNullLogger()

	a := New(DefaultConfig(), cam, det, display.NewHeadless(), log)
	a.SetRecorder(rec)
	if err := a.Run(context.Background(), AfterFrames(4)); err != nil {
		t.Fatalf("recorder errors should not stop the loop: %v", err)
	}

	if len(rec.indices) != 4 {
		t.Errorf("recorded %d frames, want 4", len(rec.indices))
	}
	if rec.closed != 1 {
		t.Errorf("recorder closed %d times, want 1", rec.closed)
	}
}

func TestRun_MotionGateReusesResult(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 1), true)
	det := detector.NewMockDetector()
	det.SetHands(palm())
	sink := &fakeSink{}
	log, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.MotionThreshold = 1.0
	a := New(cfg, cam, det, display.NewHeadless(), log)
	a.SetSink(sink)
	if err := a.Run(context.Background(), AfterFrames(4)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if det.Calls() != 1 {
		t.Errorf("detector called %d times on a still scene, want 1", det.Calls())
	}
	if a.Stats().Reused != 3 {
		t.Errorf("Reused = %d, want 3", a.Stats().Reused)
	}
	for _, p := range sink.got {
		if p.hands != 1 {
			t.Errorf("frame %d lost the reused hand", p.index)
		}
	}
}

func TestRun_MotionGateCatchesSlowDrift(t *testing.T) {
	var frames []*gocv.Mat
	for _, v := range []float64{0, 20, 40} {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 48, 64, gocv.MatTypeCV8UC3)
		frames = append(frames, &m)
	}
	t.Cleanup(func() {
		for _, m := range frames {
			m.Close()
		}
	})

	cam := capture.NewMockCamera(frames, false)
	det := detector.NewMockDetector()
	det.SetHands(palm())
	log, _ := test.NewNullLogger()

	cfg := DefaultConfig()
	cfg.MotionThreshold = 1.0
	a := New(cfg, cam, det, display.NewHeadless(), log)
	if err := a.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Frame 1 is a small step from frame 0 and reuses its result; frame 2
	// has drifted far enough from frame 0 to be detected again.
	if det.Calls() != 2 {
		t.Errorf("detector called %d times, want 2", det.Calls())
	}
	if a.Stats().Reused != 1 {
		t.Errorf("Reused = %d, want 1", a.Stats().Reused)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	cam := capture.NewMockCamera(newFrames(t, 1), true)
	det := detector.NewMockDetector()
	disp := display.NewHeadless()
	log, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(DefaultConfig(), cam, det, disp, log)
	if err := a.Run(ctx, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if disp.Shown() != 0 {
		t.Errorf("cancelled run showed %d frames", disp.Shown())
	}
	if cam.CloseCount() != 1 || !det.Closed() {
		t.Error("resources should be released after cancellation")
	}
}

func TestStopFuncs(t *testing.T) {
	q := QuitOnKey('q')
	if !q(0, 'q') || !q(0, 'Q') || q(0, 'w') || q(0, display.NoKey) {
		t.Error("QuitOnKey('q') should match q and Q only")
	}

	n := AfterFrames(3)
	if n(2, display.NoKey) || !n(3, display.NoKey) || !n(4, display.NoKey) {
		t.Error("AfterFrames(3) should stop at 3 frames")
	}

	either := Any(q, n)
	if either(1, display.NoKey) {
		t.Error("Any should not stop when no condition holds")
	}
	if !either(1, 'q') || !either(3, display.NoKey) {
		t.Error("Any should stop when one condition holds")
	}
	if Any()(100, 'q') {
		t.Error("empty Any never stops")
	}
}
