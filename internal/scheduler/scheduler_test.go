package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgwall/internal/phase"
	"tgwall/internal/wallpaper"
	"tgwall/internal/weather"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeProvider struct {
	data *weather.Data
	err  error
}

func (f *fakeProvider) Get(ctx context.Context) (*weather.Data, error) {
	return f.data, f.err
}

type fakeApplier struct {
	calls  int
	closes int
	err    error
}

func (f *fakeApplier) ApplyWallpaper(ctx context.Context, chat, path string) error {
	f.calls++
	return f.err
}

func (f *fakeApplier) Close() error {
	f.closes++
	return nil
}

func testWeather(t *testing.T) *weather.Data {
	t.Helper()
	loc := time.FixedZone("local", 3*3600)
	return &weather.Data{
		Provider:    "test",
		Condition:   "Clouds",
		ConditionID: 802,
		Clouds:      50,
		Sunrise:     time.Date(2024, 6, 10, 6, 0, 0, 0, loc),
		Sunset:      time.Date(2024, 6, 10, 20, 0, 0, 0, loc),
	}
}

// newTestScheduler builds a scheduler over a temp directory with real
// wallpaper files on disk so the existence check passes.
func newTestScheduler(t *testing.T, provider weather.Provider, applier Applier, mode string, fogChance float64) *Scheduler {
	t.Helper()
	dir := t.TempDir()

	files := []string{
		"dawn_cloudy.jpg", "dawn_fog_cloudy.jpg", "dawn_clear.jpg",
		"day_clear.jpg", "day_cloudy.jpg",
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfgJSON := fmt.Sprintf(`{
	  "matrix": {
	    "dawn": {
	      "clear": ["dawn_clear.jpg"],
	      "cloudy": ["dawn_cloudy.jpg"],
	      "fog_cloudy": ["dawn_fog_cloudy.jpg"]
	    },
	    "day": {
	      "clear": ["day_clear.jpg"],
	      "cloudy": ["day_cloudy.jpg"]
	    }
	  },
	  "flags": {"mode": %q, "use_random_selection": false},
	  "probabilities": {"fogChance": %g, "thunderChance": 0.5}
	}`, mode, fogChance)

	cfg, err := wallpaper.ParseConfig([]byte(cfgJSON))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	loc := time.FixedZone("local", 3*3600)
	now := time.Date(2024, 6, 10, 6, 15, 0, 0, loc)

	return New(Config{
		Provider:         provider,
		Matrix:           wallpaper.New(dir, cfg, rand.New(rand.NewSource(1))),
		Cache:            wallpaper.NewCache(filepath.Join(dir, ".cache", "last_state.json"), true),
		Stats:            wallpaper.NewStats(filepath.Join(dir, ".cache", "weather_stats.json"), true),
		Applier:          applier,
		Chat:             "@testchat",
		FallbackInterval: time.Second,
		HistoryLimit:     50,
		Now:              func() time.Time { return now },
	})
}

// Two ticks with unchanged weather inside the same phase must produce
// exactly one remote apply.
func TestRunOnceCacheIdempotence(t *testing.T) {
	applier := &fakeApplier{}
	s := newTestScheduler(t, &fakeProvider{data: testWeather(t)}, applier, wallpaper.ModeWeatherNoFog, 0.3)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if applier.calls != 1 {
		t.Errorf("apply calls = %d, want 1", applier.calls)
	}
	status := s.Status()
	if status == nil || status.Outcome != OutcomeSkipped {
		t.Errorf("second tick status = %+v, want skipped", status)
	}
}

func TestRunOnceWeatherUnavailableDefaultsToDay(t *testing.T) {
	applier := &fakeApplier{}
	s := newTestScheduler(t, &fakeProvider{err: errors.New("api down")}, applier, wallpaper.ModeWeatherNoFog, 0.3)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if applier.calls != 1 {
		t.Fatalf("apply calls = %d, want 1", applier.calls)
	}

	status := s.Status()
	if status.Phase != string(phase.Day) {
		t.Errorf("phase = %s, want day", status.Phase)
	}
	if status.Instance != wallpaper.InstanceClear {
		t.Errorf("instance = %s, want clear (no weather signal)", status.Instance)
	}
}

func TestRunOnceResolutionMissSkipsTick(t *testing.T) {
	// 02:00 local is night, which the matrix does not configure.
	data := testWeather(t)
	applier := &fakeApplier{}
	s := newTestScheduler(t, &fakeProvider{data: data}, applier, wallpaper.ModeWeatherNoFog, 0.3)
	s.now = func() time.Time { return data.Sunrise.Add(-4 * time.Hour) }

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if applier.calls != 0 {
		t.Errorf("apply calls = %d, want 0 on resolution miss", applier.calls)
	}
	if status := s.Status(); status.Outcome != OutcomeNoFile {
		t.Errorf("outcome = %s, want no_file", status.Outcome)
	}
}

func TestRunOnceApplyFailurePropagatesAndKeepsCacheClean(t *testing.T) {
	applier := &fakeApplier{err: errors.New("flood wait")}
	s := newTestScheduler(t, &fakeProvider{data: testWeather(t)}, applier, wallpaper.ModeWeatherNoFog, 0.3)

	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected apply error to propagate")
	}

	// The failed apply must not have been cached: the next tick retries.
	applier.err = nil
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("retry tick: %v", err)
	}
	if applier.calls != 2 {
		t.Errorf("apply calls = %d, want 2", applier.calls)
	}
	if status := s.Status(); status.Outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied", status.Outcome)
	}
}

// The end-to-end path: 06:15 with a 06:00/20:00 sun puts us in dawn; clouds
// at 50% classify as cloudy; a guaranteed fog draw lands on fog_cloudy; the
// second identical tick is skipped by the cache.
func TestRunOnceEndToEnd(t *testing.T) {
	applier := &fakeApplier{}
	s := newTestScheduler(t, &fakeProvider{data: testWeather(t)}, applier, wallpaper.ModeWeatherBased, 1.0)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	status := s.Status()
	if status.Phase != string(phase.Dawn) {
		t.Errorf("phase = %s, want dawn", status.Phase)
	}
	if status.Instance != wallpaper.InstanceFogCloudy {
		t.Errorf("instance = %s, want fog_cloudy", status.Instance)
	}
	if filepath.Base(status.File) != "dawn_fog_cloudy.jpg" {
		t.Errorf("file = %s, want dawn_fog_cloudy.jpg", status.File)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if applier.calls != 1 {
		t.Errorf("apply calls = %d, want 1", applier.calls)
	}
}

func TestRunDaemonClosesApplierOnCancel(t *testing.T) {
	applier := &fakeApplier{}
	s := newTestScheduler(t, &fakeProvider{err: errors.New("api down")}, applier, wallpaper.ModeWeatherNoFog, 0.3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunDaemon(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunDaemon: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	if applier.closes != 1 {
		t.Errorf("applier closes = %d, want 1", applier.closes)
	}
	// The bad tick must not have killed the loop before cancellation; the
	// fallback sleep keeps the cadence.
	if applier.calls != 1 {
		t.Errorf("apply calls = %d, want 1", applier.calls)
	}
}
