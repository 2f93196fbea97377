package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"tgwall/internal/mqtt"
	"tgwall/internal/phase"
	"tgwall/internal/storage"
	"tgwall/internal/wallpaper"
	"tgwall/internal/weather"
)

// Applier is the messaging client contract: upload an image and set it as
// the chat's wallpaper. Close must be idempotent and safe on a client that
// never connected.
type Applier interface {
	ApplyWallpaper(ctx context.Context, chat, path string) error
	Close() error
}

// Tick outcomes reported through Status.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeNoFile  = "no_file"
	OutcomeFailed  = "failed"
)

// TickStatus is a snapshot of the most recent tick, exposed to the status
// API.
type TickStatus struct {
	Time           time.Time `json:"time"`
	Phase          string    `json:"phase"`
	Instance       string    `json:"instance"`
	File           string    `json:"file"`
	Outcome        string    `json:"outcome"`
	NextCheckpoint time.Time `json:"next_checkpoint,omitempty"`
	NextPhase      string    `json:"next_phase,omitempty"`
}

type Scheduler struct {
	provider  weather.Provider
	matrix    *wallpaper.Matrix
	cache     *wallpaper.Cache
	stats     *wallpaper.Stats
	applier   Applier
	db        *storage.Database
	publisher *mqtt.Publisher

	chat             string
	fallbackInterval time.Duration
	historyLimit     int
	now              func() time.Time

	mu       sync.RWMutex
	lastTick *TickStatus
}

type Config struct {
	Provider  weather.Provider
	Matrix    *wallpaper.Matrix
	Cache     *wallpaper.Cache
	Stats     *wallpaper.Stats
	Applier   Applier
	Database  *storage.Database
	Publisher *mqtt.Publisher

	Chat             string
	FallbackInterval time.Duration
	HistoryLimit     int

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

func New(cfg Config) *Scheduler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	fallback := cfg.FallbackInterval
	if fallback < time.Second {
		fallback = time.Second
	}
	return &Scheduler{
		provider:         cfg.Provider,
		matrix:           cfg.Matrix,
		cache:            cfg.Cache,
		stats:            cfg.Stats,
		applier:          cfg.Applier,
		db:               cfg.Database,
		publisher:        cfg.Publisher,
		chat:             cfg.Chat,
		fallbackInterval: fallback,
		historyLimit:     cfg.HistoryLimit,
		now:              now,
	}
}

// RunOnce performs a single update tick: fetch weather, derive the phase,
// resolve an instance and file, and apply it unless the cache says nothing
// changed. Only the apply step fails loudly; everything after a successful
// apply is best-effort.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	data, err := s.provider.Get(ctx)
	if err != nil {
		log.Printf("Weather unavailable, defaulting to day phase: %v", err)
		data = nil
	}

	p := phase.Day
	if data.HasSunTimes() {
		localNow := s.now().In(data.Sunrise.Location())
		p = phase.At(localNow, data.Sunrise, data.Sunset)
		log.Printf("Phase=%s at %s (sunrise=%s sunset=%s)",
			p, localNow.Format(time.RFC3339),
			data.Sunrise.Format("15:04"), data.Sunset.Format("15:04"))
	}

	instance := s.matrix.PickInstance(p, data)

	file, ok := s.matrix.ResolveFile(p, instance)
	if !ok {
		log.Printf("No wallpaper configured for phase=%s instance=%s", p, instance)
		s.setLastTick(TickStatus{Time: s.now(), Phase: string(p), Instance: instance, Outcome: OutcomeNoFile})
		return nil
	}
	if _, err := os.Stat(file); err != nil {
		log.Printf("Wallpaper file missing, skipping update: %s", file)
		s.setLastTick(TickStatus{Time: s.now(), Phase: string(p), Instance: instance, File: file, Outcome: OutcomeNoFile})
		return nil
	}

	if s.cache.ShouldSkip(p, instance, file) {
		log.Printf("Phase=%s Weather=%s unchanged, skipping", p, instance)
		s.setLastTick(TickStatus{Time: s.now(), Phase: string(p), Instance: instance, File: file, Outcome: OutcomeSkipped})
		return nil
	}

	if err := s.applier.ApplyWallpaper(ctx, s.chat, file); err != nil {
		s.setLastTick(TickStatus{Time: s.now(), Phase: string(p), Instance: instance, File: file, Outcome: OutcomeFailed})
		return fmt.Errorf("apply wallpaper: %w", err)
	}
	log.Printf("Phase=%s Weather=%s Wallpaper=%s", p, instance, file)

	s.cache.Save(p, instance, file)

	if s.db != nil {
		if err := s.db.RecordApply(string(p), instance, file); err != nil {
			log.Printf("Error recording apply: %v", err)
		}
		if err := s.db.TrimToLast(s.historyLimit); err != nil {
			log.Printf("Error trimming history: %v", err)
		}
	}

	s.stats.Increment(instance)

	if s.publisher != nil {
		if err := s.publisher.Announce(mqtt.Announcement{
			Phase:     string(p),
			Instance:  instance,
			File:      file,
			AppliedAt: s.now(),
		}); err != nil {
			log.Printf("Error publishing to MQTT: %v", err)
		}
	}

	s.setLastTick(TickStatus{Time: s.now(), Phase: string(p), Instance: instance, File: file, Outcome: OutcomeApplied})
	return nil
}

// RunDaemon loops forever, sleeping until the next phase boundary between
// ticks. A failed tick is logged and the cadence continues; the messaging
// client is always closed on the way out.
func (s *Scheduler) RunDaemon(ctx context.Context) error {
	defer func() {
		if err := s.applier.Close(); err != nil {
			log.Printf("Error closing messaging client: %v", err)
		}
	}()

	log.Printf("Daemon started (fallback interval %s)", s.fallbackInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			log.Printf("Update tick failed: %v", err)
		}

		sleep := s.nextSleep(ctx)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Daemon stopped")
			return nil
		case <-timer.C:
		}
	}
}

// nextSleep sizes the pause until the next phase boundary using freshly
// fetched weather, falling back to the fixed interval when the weather or
// the computation is unavailable. Never less than one second.
func (s *Scheduler) nextSleep(ctx context.Context) time.Duration {
	data, err := s.provider.Get(ctx)
	if err != nil || !data.HasSunTimes() {
		log.Printf("Cannot compute next checkpoint, sleeping fallback interval %s", s.fallbackInterval)
		s.setNextCheckpoint(time.Time{}, "")
		return s.fallbackInterval
	}

	localNow := s.now().In(data.Sunrise.Location())
	at, next := phase.NextCheckpoint(localNow, data.Sunrise, data.Sunset)

	sleep := at.Sub(localNow)
	if sleep < time.Second {
		sleep = time.Second
	}
	log.Printf("Scheduler: now=%s -> next phase %s at %s (in %s)",
		localNow.Format(time.RFC3339), next, at.Format(time.RFC3339), sleep.Round(time.Second))

	s.setNextCheckpoint(at, next)
	return sleep
}

func (s *Scheduler) setLastTick(status TickStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTick != nil {
		status.NextCheckpoint = s.lastTick.NextCheckpoint
		status.NextPhase = s.lastTick.NextPhase
	}
	s.lastTick = &status
}

func (s *Scheduler) setNextCheckpoint(at time.Time, next phase.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTick == nil {
		s.lastTick = &TickStatus{}
	}
	s.lastTick.NextCheckpoint = at
	s.lastTick.NextPhase = string(next)
}

// Status returns the most recent tick snapshot, or nil before the first
// tick.
func (s *Scheduler) Status() *TickStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastTick == nil {
		return nil
	}
	copied := *s.lastTick
	return &copied
}
