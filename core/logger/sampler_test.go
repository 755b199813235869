package logger

import "testing"

func TestSamplerDisabledAllowsEverything(t *testing.T) {
	s := newRatioSampler(0, 0)
	for i := 0; i < 20; i++ {
		if !s.Allow() {
			t.Fatalf("disabled sampler rejected tick %d", i)
		}
	}
}

func TestSamplerSetRestartsWindow(t *testing.T) {
	s := newRatioSampler(1, 2)
	if !s.Allow() {
		t.Fatal("first tick of window must pass")
	}
	if s.Allow() {
		t.Fatal("second tick of 1/2 window must be dropped")
	}
	s.Set(1, 3)
	if !s.Allow() {
		t.Fatal("Set must restart the window")
	}
	if s.Allow() || s.Allow() {
		t.Fatal("ticks 2-3 of 1/3 window must be dropped")
	}
}

func TestSamplerClampsKeepToWindow(t *testing.T) {
	s := newRatioSampler(10, 4)
	for i := 0; i < 8; i++ {
		if !s.Allow() {
			t.Fatalf("keep>window must behave as keep-all, rejected tick %d", i)
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := []struct {
		spec         string
		keep, window int
	}{
		{"1/50", 1, 50},
		{" 2 / 25 ", 2, 25},
		{"50", 1, 50},
		{"off", 0, 0},
		{"all", 0, 0},
		{"", 0, 0},
		{"garbage", 0, 0},
		{"1/x", 0, 0},
		{"-5", 0, 0},
	}
	for _, tc := range cases {
		keep, window := parseRatioSpec(tc.spec)
		if keep != tc.keep || window != tc.window {
			t.Errorf("parseRatioSpec(%q) = (%d, %d), want (%d, %d)",
				tc.spec, keep, window, tc.keep, tc.window)
		}
	}
}
