package store

import (
	"fmt"
	"time"

	"github.com/ayusman/handrig/internal/detector"
	"github.com/sirupsen/logrus"
)

// Recorder writes one session's frames to the store. Frames without hands
// are counted but not stored.
type Recorder struct {
	store   *Store
	session *Session
	frames  int
	log     logrus.FieldLogger
}

// NewRecorder starts a new session for the given camera.
func NewRecorder(s *Store, cameraID, maxHands int, log logrus.FieldLogger) (*Recorder, error) {
	sess := &Session{CameraID: cameraID, MaxHands: maxHands}
	if err := s.Sessions().Create(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.WithField("session", sess.ID).Info("Recording session")

	return &Recorder{store: s, session: sess, log: log}, nil
}

// SessionID returns the ID of the session being recorded.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// Record stores the hands found in frame frameIndex.
func (r *Recorder) Record(frameIndex int, at time.Time, hands []detector.HandLandmarks) error {
	r.frames = frameIndex + 1
	if len(hands) == 0 {
		return nil
	}
	return r.store.Frames().Append(r.session.ID, frameIndex, at.UnixMilli(), hands)
}

// Close marks the session finished.
func (r *Recorder) Close() error {
	if err := r.store.Sessions().Finish(r.session.ID, r.frames); err != nil {
		return fmt.Errorf("finish session %s: %w", r.session.ID, err)
	}
	r.log.WithFields(logrus.Fields{"session": r.session.ID, "frames": r.frames}).Info("Session recorded")
	return nil
}
