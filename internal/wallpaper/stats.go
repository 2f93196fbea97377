package wallpaper

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// statsKeys are the counters every stats file starts with.
var statsKeys = []string{
	InstanceClear,
	InstanceCloudy,
	InstanceOvercast,
	InstanceRain,
	InstanceHeavyRain,
	InstanceThunderstorm,
	"fog",
}

// Stats keeps per-instance apply counters in a JSON file. The fog_* variants
// collapse into a single fog counter. Updates are best-effort: failures are
// logged and swallowed.
type Stats struct {
	path    string
	enabled bool
}

func NewStats(path string, enabled bool) *Stats {
	return &Stats{path: path, enabled: enabled}
}

// StatsKey normalizes an instance name to its counter key.
func StatsKey(instance string) string {
	if strings.HasPrefix(instance, "fog") {
		return "fog"
	}
	return instance
}

// Increment bumps the counter for the given instance.
func (s *Stats) Increment(instance string) {
	if !s.enabled {
		return
	}
	counts := s.Load()
	key := StatsKey(instance)
	counts[key]++
	if err := s.write(counts); err != nil {
		log.Printf("stats: could not update %s: %v", s.path, err)
		return
	}
	log.Printf("stats: %s -> %d total", key, counts[key])
}

// Load reads the current counters, merging them over the default keys. A
// missing or unreadable file yields the defaults.
func (s *Stats) Load() map[string]int {
	counts := make(map[string]int, len(statsKeys))
	for _, k := range statsKeys {
		counts[k] = 0
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return counts
	}
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("stats: could not parse %s, recreating: %v", s.path, err)
		return counts
	}
	for k, v := range raw {
		counts[k] = v
	}
	return counts
}

// Replace overwrites the counters wholesale, used by the rebuild command.
func (s *Stats) Replace(counts map[string]int) error {
	merged := make(map[string]int, len(statsKeys))
	for _, k := range statsKeys {
		merged[k] = 0
	}
	for k, v := range counts {
		merged[k] = v
	}
	return s.write(merged)
}

func (s *Stats) write(counts map[string]int) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(counts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
