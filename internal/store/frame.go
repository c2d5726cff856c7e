package store

import (
	"database/sql"
	"encoding/json"

	"github.com/ayusman/handrig/internal/detector"
)

// Frame is the detection result recorded for one frame of a session.
type Frame struct {
	ID          int64                    `json:"id"`
	SessionID   string                   `json:"session_id"`
	FrameIndex  int                      `json:"frame_index"`
	TimestampMs int64                    `json:"timestamp_ms"`
	Hands       []detector.HandLandmarks `json:"hands"`
}

// FrameRepository stores per-frame detection results.
type FrameRepository struct {
	db *sql.DB
}

// Frames returns the frame repository for this store.
func (s *Store) Frames() *FrameRepository {
	return &FrameRepository{db: s.db}
}

// Append stores the hands detected in one frame of a session.
func (r *FrameRepository) Append(sessionID string, frameIndex int, timestampMs int64, hands []detector.HandLandmarks) error {
	if hands == nil {
		hands = []detector.HandLandmarks{}
	}
	data, err := json.Marshal(hands)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO session_frames (session_id, frame_index, timestamp_ms, hands) VALUES (?, ?, ?, ?)`,
		sessionID, frameIndex, timestampMs, string(data),
	)
	return err
}

// ListBySession retrieves the frames of a session in capture order.
func (r *FrameRepository) ListBySession(sessionID string) ([]Frame, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, frame_index, timestamp_ms, hands
		 FROM session_frames
		 WHERE session_id = ?
		 ORDER BY frame_index`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := []Frame{}
	for rows.Next() {
		var f Frame
		var data string
		if err := rows.Scan(&f.ID, &f.SessionID, &f.FrameIndex, &f.TimestampMs, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &f.Hands); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}
