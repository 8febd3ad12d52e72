package hri

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// DefaultSmoothingDT emulates 25 fps region updates
const DefaultSmoothingDT = 1.0 / 25.0

// roiSmoother smooths region of interest with 8-D Kalman filter.
// State vector: [cx, cy, w, h, vx, vy, vw, vh].
// It is owned by the listener goroutine and is never touched by readers.
type roiSmoother struct {
	dt      float64
	tracker *kalman_filter.KalmanBBox
}

func newROISmoother(dt float64) *roiSmoother {
	if dt <= 0 {
		dt = DefaultSmoothingDT
	}
	return &roiSmoother{
		dt: dt,
	}
}

// init creates filter with initial state from first measurement
func (smoother *roiSmoother) init(rect Rectangle) {
	// Kalman filter props
	uCx := 1.0
	uCy := 1.0
	uW := 0.0
	uH := 0.0
	stdDevA := 2.0
	stdDevMCx := 0.1
	stdDevMCy := 0.1
	stdDevMW := 0.1
	stdDevMH := 0.1
	center := rect.Center()
	smoother.tracker = kalman_filter.NewKalmanBBox(
		smoother.dt, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(center.X, center.Y, rect.Width, rect.Height),
	)
}

// Update executes prediction and correction steps and returns smoothed rectangle.
// First measurement is returned as is.
func (smoother *roiSmoother) Update(rect Rectangle) (Rectangle, error) {
	if smoother.tracker == nil {
		smoother.init(rect)
		return rect, nil
	}
	smoother.tracker.Predict()
	center := rect.Center()
	err := smoother.tracker.Update(center.X, center.Y, rect.Width, rect.Height)
	if err != nil {
		return Rectangle{}, errors.Wrap(err, "Can't update region smoother")
	}
	cx, cy, w, h := smoother.tracker.GetState()
	return Rectangle{
		X:      cx - w/2.0,
		Y:      cy - h/2.0,
		Width:  w,
		Height: h,
	}, nil
}
