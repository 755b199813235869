package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler thins high-volume debug events by keeping the first
// `keep` ticks out of every `window`. The poll loop emits one
// empty-batch event per wait interval, so the 1/50 default leaves
// roughly one idle-poll line every twenty minutes instead of two a
// minute.
type ratioSampler struct {
	// keep in the high 32 bits, window in the low; zero disables sampling
	shape atomic.Uint64
	ticks atomic.Uint64
}

func newRatioSampler(keep, window int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(keep, window)
	return s
}

// Set replaces the sampling shape and restarts the window. A
// non-positive pair disables sampling, letting every event through.
func (s *ratioSampler) Set(keep, window int) {
	if keep <= 0 || window <= 0 {
		s.shape.Store(0)
		s.ticks.Store(0)
		return
	}
	if keep > window {
		keep = window
	}
	s.shape.Store(uint64(keep)<<32 | uint64(window))
	s.ticks.Store(0)
}

// Allow reports whether the current event survives sampling.
func (s *ratioSampler) Allow() bool {
	shape := s.shape.Load()
	if shape == 0 {
		return true
	}
	keep := shape >> 32
	window := shape & 0xffffffff
	tick := s.ticks.Add(1) - 1
	return tick%window < keep
}

// parseRatioSpec reads the logging.debug_sample config value:
// "keep/window" ("1/50"), a bare window ("50" reads as 1/50), or
// "off"/"all" to disable sampling. Unparseable input disables it too,
// which errs on the side of keeping logs.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "", "off", "all":
		return 0, 0
	}
	if head, tail, found := strings.Cut(spec, "/"); found {
		keep, errKeep := strconv.Atoi(strings.TrimSpace(head))
		window, errWindow := strconv.Atoi(strings.TrimSpace(tail))
		if errKeep != nil || errWindow != nil {
			return 0, 0
		}
		return keep, window
	}
	window, err := strconv.Atoi(spec)
	if err != nil || window <= 0 {
		return 0, 0
	}
	return 1, window
}
