package tracking

import (
	"math"

	"github.com/lakmal-w/campustrack/internal/geo"
)

// Default thresholds for deciding whether a new sample is worth
// propagating. Continuous mobile tracking typically keeps the sub-meter
// distance default; network-estimate tracking passes a larger one.
const (
	DefaultDistanceThreshold = 0.5 // meters
	DefaultHeadingThreshold  = 5.0 // degrees
	DefaultSpeedThreshold    = 0.5 // m/s
)

// WithDistanceThreshold overrides the minimum movement in meters that
// makes a sample worth propagating.
func WithDistanceThreshold(meters float64) func(*Filter) {
	return func(f *Filter) {
		f.distanceThreshold = meters
	}
}

// WithHeadingThreshold overrides the heading change in degrees that
// makes a sample worth propagating.
func WithHeadingThreshold(degrees float64) func(*Filter) {
	return func(f *Filter) {
		f.headingThreshold = degrees
	}
}

// WithSpeedThreshold overrides the speed change in m/s that makes a
// sample worth propagating.
func WithSpeedThreshold(ms float64) func(*Filter) {
	return func(f *Filter) {
		f.speedThreshold = ms
	}
}

// Filter suppresses propagation of near-identical samples. It is pure:
// the caller persists the newly accepted sample on acceptance.
type Filter struct {
	distanceThreshold float64
	headingThreshold  float64
	speedThreshold    float64
}

// NewFilter creates a Filter with the default thresholds.
func NewFilter(options ...func(*Filter)) *Filter {
	f := Filter{
		distanceThreshold: DefaultDistanceThreshold,
		headingThreshold:  DefaultHeadingThreshold,
		speedThreshold:    DefaultSpeedThreshold,
	}

	for _, option := range options {
		option(&f)
	}

	return &f
}

// Accept decides whether candidate should replace previous. Invalid
// candidates are rejected with an InvalidSampleError and the previous
// state is retained. A nil previous accepts unconditionally. Otherwise
// the candidate is accepted when it moved beyond the distance
// threshold, or its heading or speed changed beyond their thresholds.
func (f *Filter) Accept(previous *PositionSample, candidate PositionSample) (bool, error) {
	if err := candidate.Validate(); err != nil {
		return false, err
	}

	if previous == nil {
		return true, nil
	}

	if geo.Distance(previous.Point(), candidate.Point()) > f.distanceThreshold {
		return true, nil
	}

	if previous.Heading != nil && candidate.Heading != nil &&
		math.Abs(*candidate.Heading-*previous.Heading) > f.headingThreshold {
		return true, nil
	}

	if previous.Speed != nil && candidate.Speed != nil &&
		math.Abs(*candidate.Speed-*previous.Speed) > f.speedThreshold {
		return true, nil
	}

	return false, nil
}
