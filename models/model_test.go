package models

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from ModelStatus
		to   ModelStatus
		want bool
	}{
		{ModelStatusPending, ModelStatusEnabled, true},
		{ModelStatusPending, ModelStatusDisabled, true},
		{ModelStatusEnabled, ModelStatusDisabled, true},
		{ModelStatusDisabled, ModelStatusEnabled, true},
		// Idempotent repeats of an operation.
		{ModelStatusEnabled, ModelStatusEnabled, true},
		{ModelStatusDisabled, ModelStatusDisabled, true},
		// Nothing moves back to pending.
		{ModelStatusEnabled, ModelStatusPending, false},
		{ModelStatusDisabled, ModelStatusPending, false},
		{ModelStatusPending, ModelStatusPending, false},
		{ModelStatus("bogus"), ModelStatusEnabled, false},
		{ModelStatusPending, ModelStatus("bogus"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestMetricsDayUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 02:00 on June 2nd in UTC+9 is still June 1st in UTC.
	at := time.Date(2025, 6, 2, 2, 0, 0, 0, loc)
	if got := MetricsDay(at); got != "2025-06-01" {
		t.Fatalf("expected 2025-06-01, got %s", got)
	}
}
