package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/handrig/internal/detector"
)

// filled is the OpenCV thickness value for a solid shape.
const filled = -1

// guardBand bounds mapped coordinates to this many frame extents on either
// side of the frame, keeping extrapolated landmarks inside OpenCV's int range.
const guardBand = 4

// Style controls how a skeleton is drawn. Colors are given in RGB; gocv
// converts them to the channel order of the destination Mat.
type Style struct {
	BoneColor     color.RGBA
	BoneThickness int
	JointColor    color.RGBA
	JointRadius   int
	TipColor      color.RGBA
	TipRadius     int
}

// DefaultStyle returns green bones, red joints and larger cyan fingertips.
func DefaultStyle() Style {
	return Style{
		BoneColor:     color.RGBA{R: 0, G: 255, B: 0, A: 0},
		BoneThickness: 2,
		JointColor:    color.RGBA{R: 255, G: 0, B: 0, A: 0},
		JointRadius:   5,
		TipColor:      color.RGBA{R: 0, G: 255, B: 255, A: 0},
		TipRadius:     10,
	}
}

// PixelPoint maps a normalized landmark onto a width x height frame.
// Coordinates are truncated toward zero, so x=0.005 on a 100px frame maps to 0.
// Points outside [0,1] map outside the frame.
func PixelPoint(p detector.Point3D, width, height int) image.Point {
	return image.Pt(toPixel(p.X, width), toPixel(p.Y, height))
}

func toPixel(v float64, extent int) int {
	v *= float64(extent)
	lo := -float64(guardBand * extent)
	hi := float64((guardBand + 1) * extent)
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	return int(v)
}

// Skeleton returns a copy of frame with every hand's skeleton drawn on it in
// the default style. frame is not modified. The caller must Close the result.
func Skeleton(frame gocv.Mat, hands []detector.HandLandmarks) gocv.Mat {
	return SkeletonWithStyle(frame, hands, DefaultStyle())
}

// SkeletonWithStyle is Skeleton with a caller supplied style.
func SkeletonWithStyle(frame gocv.Mat, hands []detector.HandLandmarks, style Style) gocv.Mat {
	out := frame.Clone()
	DrawSkeleton(&out, hands, style)
	return out
}

// DrawSkeleton draws hands onto dst in place. Bones are drawn first so the
// joint markers sit on top of them. Landmarks with non-finite coordinates are
// skipped along with every bone that touches them.
func DrawSkeleton(dst *gocv.Mat, hands []detector.HandLandmarks, style Style) {
	if dst == nil || dst.Empty() || len(hands) == 0 {
		return
	}

	width, height := dst.Cols(), dst.Rows()

	for i := range hands {
		var pts [detector.NumLandmarks]image.Point
		var ok [detector.NumLandmarks]bool
		for j, p := range hands[i].Points {
			if p.Finite() {
				pts[j] = PixelPoint(p, width, height)
				ok[j] = true
			}
		}

		for _, c := range connections {
			if ok[c.From] && ok[c.To] {
				gocv.Line(dst, pts[c.From], pts[c.To], style.BoneColor, style.BoneThickness)
			}
		}

		for j, pt := range pts {
			if !ok[j] {
				continue
			}
			if fingertips[j] {
				gocv.Circle(dst, pt, style.TipRadius, style.TipColor, filled)
			} else {
				gocv.Circle(dst, pt, style.JointRadius, style.JointColor, filled)
			}
		}
	}
}
