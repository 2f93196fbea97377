package phase

import (
	"testing"
	"time"
)

func sunTimes(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	loc := time.FixedZone("local", 3*3600)
	sunrise := time.Date(2024, 6, 10, 6, 0, 0, 0, loc)
	sunset := time.Date(2024, 6, 10, 20, 0, 0, 0, loc)
	return sunrise, sunset
}

func TestAtWindows(t *testing.T) {
	sunrise, sunset := sunTimes(t)

	cases := []struct {
		name string
		at   time.Time
		want Phase
	}{
		{"before dawn", sunrise.Add(-31 * time.Minute), Night},
		{"dawn start", sunrise.Add(-30 * time.Minute), Dawn},
		{"just before morning", sunrise.Add(29 * time.Minute), Dawn},
		{"morning start", sunrise.Add(30 * time.Minute), Morning},
		{"mid morning", sunrise.Add(time.Hour), Morning},
		{"day start", sunrise.Add(2 * time.Hour), Day},
		{"midday", sunrise.Add(6 * time.Hour), Day},
		{"evening start", sunset.Add(-2 * time.Hour), Evening},
		{"sunset start", sunset.Add(-30 * time.Minute), Sunset},
		{"just before night", sunset.Add(29 * time.Minute), Sunset},
		{"night start", sunset.Add(30 * time.Minute), Night},
		{"deep night", sunset.Add(4 * time.Hour), Night},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := At(tc.at, sunrise, sunset); got != tc.want {
				t.Errorf("At(%s) = %s, want %s", tc.at.Format("15:04"), got, tc.want)
			}
		})
	}
}

// Every minute of a 24h cycle must map to exactly one phase, and the day
// phases must appear in order with night on both ends.
func TestAtPartitionsDay(t *testing.T) {
	sunrise, sunset := sunTimes(t)
	start := sunrise.Add(-6 * time.Hour)

	seen := map[Phase]int{}
	var order []Phase
	for m := 0; m < 24*60; m++ {
		p := At(start.Add(time.Duration(m)*time.Minute), sunrise, sunset)
		switch p {
		case Night, Dawn, Morning, Day, Evening, Sunset:
		default:
			t.Fatalf("unexpected phase %q", p)
		}
		seen[p]++
		if len(order) == 0 || order[len(order)-1] != p {
			order = append(order, p)
		}
	}

	for _, p := range []Phase{Night, Dawn, Morning, Day, Evening, Sunset} {
		if seen[p] == 0 {
			t.Errorf("phase %s never observed over 24h", p)
		}
	}

	want := []Phase{Night, Dawn, Morning, Day, Evening, Sunset, Night}
	if len(order) != len(want) {
		t.Fatalf("phase sequence = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("phase sequence = %v, want %v", order, want)
		}
	}
}

func TestNextCheckpointStrictlyAfterNow(t *testing.T) {
	sunrise, sunset := sunTimes(t)
	start := sunrise.Add(-8 * time.Hour)

	for m := 0; m < 24*60; m += 7 {
		now := start.Add(time.Duration(m) * time.Minute)
		at, _ := NextCheckpoint(now, sunrise, sunset)
		if !at.After(now) {
			t.Fatalf("NextCheckpoint(%s) = %s, not after now", now, at)
		}
	}
}

// Iterating checkpoints from before dawn must visit phases in the fixed
// cyclic order and wrap to the next day's dawn.
func TestNextCheckpointCycle(t *testing.T) {
	sunrise, sunset := sunTimes(t)
	now := sunrise.Add(-2 * time.Hour)

	want := []Phase{Dawn, Morning, Day, Evening, Sunset, Night, Dawn}
	var prev time.Time
	for i, wantPhase := range want {
		at, next := NextCheckpoint(now, sunrise, sunset)
		if next != wantPhase {
			t.Fatalf("checkpoint %d: phase = %s, want %s", i, next, wantPhase)
		}
		if i > 0 && !at.After(prev) {
			t.Fatalf("checkpoint %d at %s not after previous %s", i, at, prev)
		}
		prev = at
		now = at
	}

	wantNextDawn := sunrise.Add(24*time.Hour - 30*time.Minute)
	if !prev.Equal(wantNextDawn) {
		t.Errorf("wrapped dawn = %s, want %s", prev, wantNextDawn)
	}
}

// Checkpoint targets must agree with the phase lookup at the returned
// instant, except past the last boundary where the next-day dawn is an
// approximation.
func TestCheckpointMatchesAt(t *testing.T) {
	sunrise, sunset := sunTimes(t)
	now := sunrise.Add(-2 * time.Hour)

	for i := 0; i < 6; i++ {
		at, next := NextCheckpoint(now, sunrise, sunset)
		if got := At(at, sunrise, sunset); got != next {
			t.Errorf("At(checkpoint %s) = %s, checkpoint says %s", at, got, next)
		}
		now = at
	}
}

// A very short day makes the windows overlap; the lookup must still return a
// valid phase for every instant rather than failing.
func TestAtShortDay(t *testing.T) {
	loc := time.UTC
	sunrise := time.Date(2024, 12, 21, 10, 0, 0, 0, loc)
	sunset := time.Date(2024, 12, 21, 13, 0, 0, 0, loc)

	start := sunrise.Add(-4 * time.Hour)
	for m := 0; m < 12*60; m++ {
		p := At(start.Add(time.Duration(m)*time.Minute), sunrise, sunset)
		switch p {
		case Night, Dawn, Morning, Day, Evening, Sunset:
		default:
			t.Fatalf("unexpected phase %q on short day", p)
		}
	}
}
