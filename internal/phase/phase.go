package phase

import "time"

// Phase is a discrete time-of-day bucket derived from sunrise and sunset.
type Phase string

const (
	Night   Phase = "night"
	Dawn    Phase = "dawn"
	Morning Phase = "morning"
	Day     Phase = "day"
	Evening Phase = "evening"
	Sunset  Phase = "sunset"
)

// Boundaries holds the canonical phase transition instants for one day.
// Both the phase lookup and the checkpoint scheduler derive from this single
// set, so the two can never drift apart.
type Boundaries struct {
	DawnStart    time.Time // sunrise - 30m
	MorningStart time.Time // sunrise + 30m
	DayStart     time.Time // sunrise + 2h
	EveningStart time.Time // sunset - 2h
	SunsetStart  time.Time // sunset - 30m
	NightStart   time.Time // sunset + 30m
}

func Compute(sunrise, sunset time.Time) Boundaries {
	return Boundaries{
		DawnStart:    sunrise.Add(-30 * time.Minute),
		MorningStart: sunrise.Add(30 * time.Minute),
		DayStart:     sunrise.Add(2 * time.Hour),
		EveningStart: sunset.Add(-2 * time.Hour),
		SunsetStart:  sunset.Add(-30 * time.Minute),
		NightStart:   sunset.Add(30 * time.Minute),
	}
}

// At returns the phase active at now. Windows are half-open and evaluated
// dawn through sunset, falling through to night; first match wins, which
// keeps very short days from producing impossible results when windows
// overlap.
func At(now, sunrise, sunset time.Time) Phase {
	b := Compute(sunrise, sunset)

	if within(now, b.DawnStart, b.MorningStart) {
		return Dawn
	}
	if within(now, b.MorningStart, b.DayStart) {
		return Morning
	}
	if within(now, b.DayStart, b.EveningStart) {
		return Day
	}
	if within(now, b.EveningStart, b.SunsetStart) {
		return Evening
	}
	if within(now, b.SunsetStart, b.NightStart) {
		return Sunset
	}
	return Night
}

// NextCheckpoint returns the first phase boundary strictly after now and the
// phase that becomes active there. Past the last boundary of the day it
// returns the next day's dawn start, approximated by adding 24h to sunrise.
func NextCheckpoint(now, sunrise, sunset time.Time) (time.Time, Phase) {
	b := Compute(sunrise, sunset)

	checkpoints := []struct {
		at   time.Time
		next Phase
	}{
		{b.DawnStart, Dawn},
		{b.MorningStart, Morning},
		{b.DayStart, Day},
		{b.EveningStart, Evening},
		{b.SunsetStart, Sunset},
		{b.NightStart, Night},
	}

	for _, cp := range checkpoints {
		if now.Before(cp.at) {
			return cp.at, cp.next
		}
	}

	nextDawn := sunrise.Add(24*time.Hour - 30*time.Minute)
	return nextDawn, Dawn
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
