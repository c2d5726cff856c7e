package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ayusman/handrig/internal/detector"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// LandmarksMessage is what /api/landmarks sends for every frame.
type LandmarksMessage struct {
	Hands     []detector.HandLandmarks `json:"hands"`
	Frame     int                      `json:"frame"`
	Timestamp int64                    `json:"timestamp"`
}

// Hub fans annotated frames and landmarks out to HTTP clients. Publish never
// blocks: every subscriber holds at most one pending message and a slow
// client only ever sees the newest one.
type Hub struct {
	mu        sync.Mutex
	frames    map[chan []byte]struct{}
	landmarks map[chan []byte]struct{}
	closed    bool
	log       logrus.FieldLogger
}

// NewHub creates an empty Hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		frames:    make(map[chan []byte]struct{}),
		landmarks: make(map[chan []byte]struct{}),
		log:       log,
	}
}

// Publish implements app.Sink. The frame is encoded to JPEG only while
// someone is watching the stream.
func (h *Hub) Publish(frame gocv.Mat, hands []detector.HandLandmarks, frameIndex int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if len(h.landmarks) > 0 {
		if hands == nil {
			hands = []detector.HandLandmarks{}
		}
		msg, err := json.Marshal(LandmarksMessage{
			Hands:     hands,
			Frame:     frameIndex,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			h.log.WithError(err).Warn("Failed to encode landmarks")
		} else {
			for ch := range h.landmarks {
				offer(ch, msg)
			}
		}
	}

	if len(h.frames) > 0 && !frame.Empty() {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
		if err != nil {
			h.log.WithError(err).Warn("Failed to encode frame")
			return
		}
		jpeg := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		for ch := range h.frames {
			offer(ch, jpeg)
		}
	}
}

// offer replaces whatever is pending on ch with msg.
func offer(ch chan []byte, msg []byte) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// SubscribeFrames returns a channel of JPEG-encoded annotated frames and a
// function that cancels the subscription and closes the channel.
func (h *Hub) SubscribeFrames() (<-chan []byte, func()) {
	return h.subscribe(h.frames)
}

// SubscribeLandmarks returns a channel of JSON encoded LandmarksMessage
// values and a function that cancels the subscription.
func (h *Hub) SubscribeLandmarks() (<-chan []byte, func()) {
	return h.subscribe(h.landmarks)
}

func (h *Hub) subscribe(set map[chan []byte]struct{}) (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	set[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of stream and landmark subscribers.
func (h *Hub) Subscribers() (frames, landmarks int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames), len(h.landmarks)
}

// Close ends every subscription. Later Publish calls are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.frames {
		delete(h.frames, ch)
		close(ch)
	}
	for ch := range h.landmarks {
		delete(h.landmarks, ch)
		close(ch)
	}
}
