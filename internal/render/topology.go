// Package render draws hand skeletons over video frames.
package render

import "github.com/ayusman/handrig/internal/detector"

// Connection joins two landmark indices with a drawn line.
type Connection struct {
	From, To int
}

// connections is the hand skeleton: four bones per finger from the wrist
// out to the tip, plus the knuckle line across the palm.
var connections = [...]Connection{
	// Thumb
	{detector.Wrist, detector.ThumbCMC},
	{detector.ThumbCMC, detector.ThumbMCP},
	{detector.ThumbMCP, detector.ThumbIP},
	{detector.ThumbIP, detector.ThumbTip},
	// Index
	{detector.Wrist, detector.IndexMCP},
	{detector.IndexMCP, detector.IndexPIP},
	{detector.IndexPIP, detector.IndexDIP},
	{detector.IndexDIP, detector.IndexTip},
	// Middle
	{detector.Wrist, detector.MiddleMCP},
	{detector.MiddleMCP, detector.MiddlePIP},
	{detector.MiddlePIP, detector.MiddleDIP},
	{detector.MiddleDIP, detector.MiddleTip},
	// Ring
	{detector.Wrist, detector.RingMCP},
	{detector.RingMCP, detector.RingPIP},
	{detector.RingPIP, detector.RingDIP},
	{detector.RingDIP, detector.RingTip},
	// Pinky
	{detector.Wrist, detector.PinkyMCP},
	{detector.PinkyMCP, detector.PinkyPIP},
	{detector.PinkyPIP, detector.PinkyDIP},
	{detector.PinkyDIP, detector.PinkyTip},
	// Palm
	{detector.IndexMCP, detector.MiddleMCP},
	{detector.MiddleMCP, detector.RingMCP},
	{detector.RingMCP, detector.PinkyMCP},
}

// fingertips marks the landmarks drawn with the larger tip marker.
var fingertips = [detector.NumLandmarks]bool{
	detector.ThumbTip:  true,
	detector.IndexTip:  true,
	detector.MiddleTip: true,
	detector.RingTip:   true,
	detector.PinkyTip:  true,
}

// Topology returns a copy of the skeleton connection table.
func Topology() []Connection {
	out := make([]Connection, len(connections))
	copy(out, connections[:])
	return out
}

// Fingertips returns the fingertip landmark indices in ascending order.
func Fingertips() []int {
	var out []int
	for i, tip := range fingertips {
		if tip {
			out = append(out, i)
		}
	}
	return out
}

// IsFingertip reports whether landmark index i is a fingertip.
func IsFingertip(i int) bool {
	return i >= 0 && i < len(fingertips) && fingertips[i]
}
