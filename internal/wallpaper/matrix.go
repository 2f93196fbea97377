package wallpaper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"tgwall/internal/phase"
	"tgwall/internal/weather"
)

// Selection modes.
const (
	ModeTimeOnly     = "time_only"
	ModeWeatherBased = "weather_based"
	ModeWeatherNoFog = "weather_no_fog"
	ModeRandom       = "random_mode"
)

// Base instance names used by classification and the stats counters.
const (
	InstanceClear        = "clear"
	InstanceCloudy       = "cloudy"
	InstanceOvercast     = "overcast"
	InstanceRain         = "rain"
	InstanceHeavyRain    = "heavy_rain"
	InstanceThunderstorm = "thunderstorm"
	InstanceFogClear     = "fog_clear"
	InstanceFogCloudy    = "fog_cloudy"
)

type Flags struct {
	Mode                 string
	CacheEnabled         bool
	UseRandomSelection   bool
	LogDetails           bool
	ApplyFogForAllPhases bool
}

type Probabilities struct {
	FogChance     float64
	ThunderChance float64
}

type UpdateSettings struct {
	IntervalMinutes int
	Timezone        string
}

// instanceEntry preserves the config file's instance order within a phase, so
// the "first non-empty list" fallback is deterministic.
type instanceEntry struct {
	name  string
	files []string
}

// Matrix maps (phase, instance) to wallpaper files and applies the
// probabilistic weather overlays. The random source is injected so tests can
// seed it.
type Matrix struct {
	baseDir string
	flags   Flags
	probs   Probabilities
	update  UpdateSettings
	phases  map[string][]instanceEntry
	rng     *rand.Rand
}

func New(baseDir string, cfg *Config, rng *rand.Rand) *Matrix {
	return &Matrix{
		baseDir: baseDir,
		flags:   cfg.Flags,
		probs:   cfg.Probabilities,
		update:  cfg.Update,
		phases:  cfg.phases,
		rng:     rng,
	}
}

func (m *Matrix) Flags() Flags { return m.flags }

func (m *Matrix) Update() UpdateSettings { return m.update }

// Instances returns the configured instance names for a phase, in config
// order.
func (m *Matrix) Instances(p phase.Phase) []string {
	entries := m.phases[string(p)]
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return names
}

func (m *Matrix) entry(p, instance string) []string {
	for _, e := range m.phases[p] {
		if e.name == instance {
			return e.files
		}
	}
	return nil
}

// PickInstance resolves a weather observation into an instance name for the
// given phase. A nil observation means the weather was unavailable and the
// classification falls back to clear.
func (m *Matrix) PickInstance(p phase.Phase, data *weather.Data) string {
	if m.flags.Mode == ModeTimeOnly {
		return InstanceClear
	}

	var (
		main   string
		id     int
		clouds int
	)
	if data != nil {
		main = strings.ToLower(data.Condition)
		id = data.ConditionID
		clouds = data.Clouds
	}

	base := classify(main, id, clouds)

	if m.flags.Mode == ModeRandom {
		if insts := m.Instances(p); len(insts) > 0 {
			if m.flags.UseRandomSelection {
				return insts[m.rng.Intn(len(insts))]
			}
			return insts[0]
		}
		return base
	}

	log.Printf("weather: mode=%s phase=%s base=%s main=%s id=%d clouds=%d",
		m.flags.Mode, p, base, main, id, clouds)

	base = m.applyFog(p, base)

	if base == InstanceHeavyRain {
		r := m.rng.Float64()
		if m.flags.LogDetails {
			log.Printf("weather: thunderChance=%.2f rand=%.2f", m.probs.ThunderChance, r)
		}
		if r < m.probs.ThunderChance {
			base = InstanceThunderstorm
		}
	}

	log.Printf("weather: final phase=%s instance=%s (mode=%s)", p, base, m.flags.Mode)
	return base
}

// applyFog draws the fog overlay for dawn (or any phase when configured).
// The draw and candidate are computed and logged even when the mode forbids
// the substitution, for diagnostic visibility.
func (m *Matrix) applyFog(p phase.Phase, base string) string {
	if base != InstanceClear && base != InstanceCloudy {
		return base
	}
	if p != phase.Dawn && !m.flags.ApplyFogForAllPhases {
		return base
	}

	draw := m.rng.Float64()
	preferred := "fog_" + base
	alt := InstanceFogCloudy
	if preferred == InstanceFogCloudy {
		alt = InstanceFogClear
	}

	target := ""
	if len(m.entry(string(p), preferred)) > 0 {
		target = preferred
	} else if len(m.entry(string(p), alt)) > 0 {
		target = alt
	}

	targetLabel := target
	if targetLabel == "" {
		targetLabel = "n/a"
	}
	log.Printf("weather: fog candidate phase=%s base=%s target=%s rand=%.2f threshold=%.2f",
		p, base, targetLabel, draw, m.probs.FogChance)

	if target != "" && m.flags.Mode != ModeWeatherNoFog && draw < m.probs.FogChance {
		if m.flags.LogDetails {
			log.Printf("weather: fog applied %s -> %s (phase=%s)", base, target, p)
		}
		return target
	}
	return base
}

// classify maps a weather category, OpenWeather condition id and cloud cover
// percentage to a base instance. Fog-like categories are bucketed by cloud
// cover just like plain clouds; the fog instances are only reachable through
// the dawn overlay.
func classify(main string, id, clouds int) string {
	switch {
	case main == "thunderstorm" || (id >= 200 && id <= 232):
		return InstanceHeavyRain
	case main == "drizzle":
		return InstanceRain
	case main == "rain" || (id >= 500 && id <= 531):
		if heavyRainIDs[id] {
			return InstanceHeavyRain
		}
		return InstanceRain
	case main == "snow" || (id >= 600 && id <= 622):
		if heavySnowIDs[id] {
			return InstanceHeavyRain
		}
		return InstanceRain
	case main == "mist" || main == "fog" || main == "haze" || (id >= 700 && id < 800):
		return cloudBucket(clouds)
	case main == "clear" || id == 800:
		return InstanceClear
	case main == "clouds" || (id >= 801 && id <= 804):
		return cloudBucket(clouds)
	default:
		return InstanceClear
	}
}

var heavyRainIDs = map[int]bool{502: true, 503: true, 504: true, 522: true, 531: true}
var heavySnowIDs = map[int]bool{602: true, 622: true}

func cloudBucket(clouds int) string {
	switch {
	case clouds >= 85:
		return InstanceOvercast
	case clouds >= 40:
		return InstanceCloudy
	default:
		return InstanceClear
	}
}

// ResolveFile picks a concrete file for (phase, instance). Missing or empty
// entries fall back to clear, then to the first non-empty instance list in
// config order. The returned path is resolved against the base directory but
// is not checked for existence.
func (m *Matrix) ResolveFile(p phase.Phase, instance string) (string, bool) {
	entries := m.phases[string(p)]
	if len(entries) == 0 {
		log.Printf("wallpapers: no matrix entries for phase %s", p)
		return "", false
	}

	candidates := m.entry(string(p), instance)
	if len(candidates) == 0 {
		candidates = m.entry(string(p), InstanceClear)
	}
	if len(candidates) == 0 {
		for _, e := range entries {
			if len(e.files) > 0 {
				candidates = e.files
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	choice := candidates[0]
	if m.flags.UseRandomSelection {
		choice = candidates[m.rng.Intn(len(candidates))]
	}
	if m.flags.LogDetails {
		log.Printf("wallpapers: picked %s for %s/%s", choice, p, instance)
	}
	return filepath.Join(m.baseDir, choice), true
}

// Config is the parsed wallpaper matrix configuration.
type Config struct {
	Flags         Flags
	Probabilities Probabilities
	Update        UpdateSettings
	Stats         StatsSettings
	Logs          LogSettings

	phases map[string][]instanceEntry
}

type StatsSettings struct {
	Enabled bool
	File    string
}

type LogSettings struct {
	MaxEntries int
}

type rawConfig struct {
	Matrix json.RawMessage `json:"matrix"`
	Flags  struct {
		Mode                 *string `json:"mode"`
		CacheEnabled         *bool   `json:"cache_enabled"`
		UseRandomSelection   *bool   `json:"use_random_selection"`
		LogDetails           *bool   `json:"log_details"`
		ApplyFogForAllPhases *bool   `json:"apply_fog_for_all_phases"`
	} `json:"flags"`
	Probabilities struct {
		FogChance     *float64 `json:"fogChance"`
		ThunderChance *float64 `json:"thunderChance"`
	} `json:"probabilities"`
	Update struct {
		IntervalMinutes *int    `json:"interval_minutes"`
		Timezone        *string `json:"timezone"`
	} `json:"update"`
	Stats struct {
		Enabled *bool   `json:"enabled"`
		File    *string `json:"file"`
	} `json:"stats"`
	Logs struct {
		MaxEntries *int `json:"max_entries"`
	} `json:"logs"`
}

// LoadConfig reads and parses the matrix configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read matrix config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses the JSON matrix configuration. The legacy format where a
// phase maps to a single path string is normalized to a clear instance with
// one file.
func ParseConfig(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse matrix config: %w", err)
	}
	if len(raw.Matrix) == 0 {
		return nil, fmt.Errorf("matrix config has no 'matrix' object")
	}

	phases, err := parseMatrix(raw.Matrix)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Flags: Flags{
			Mode:                 stringOr(raw.Flags.Mode, ModeTimeOnly),
			CacheEnabled:         boolOr(raw.Flags.CacheEnabled, true),
			UseRandomSelection:   boolOr(raw.Flags.UseRandomSelection, true),
			LogDetails:           boolOr(raw.Flags.LogDetails, false),
			ApplyFogForAllPhases: boolOr(raw.Flags.ApplyFogForAllPhases, false),
		},
		Probabilities: Probabilities{
			FogChance:     floatOr(raw.Probabilities.FogChance, 0.3),
			ThunderChance: floatOr(raw.Probabilities.ThunderChance, 0.5),
		},
		Update: UpdateSettings{
			IntervalMinutes: intOr(raw.Update.IntervalMinutes, 30),
			Timezone:        stringOr(raw.Update.Timezone, "UTC"),
		},
		Stats: StatsSettings{
			Enabled: boolOr(raw.Stats.Enabled, true),
			File:    stringOr(raw.Stats.File, ".cache/weather_stats.json"),
		},
		Logs: LogSettings{
			MaxEntries: intOr(raw.Logs.MaxEntries, 50),
		},
		phases: phases,
	}
	return cfg, nil
}

// parseMatrix walks the matrix object with a token decoder so the instance
// order within each phase matches the config file.
func parseMatrix(data json.RawMessage) (map[string][]instanceEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse matrix: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("matrix must be an object")
	}

	phases := make(map[string][]instanceEntry)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse matrix: %w", err)
		}
		phaseName := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("parse matrix phase %s: %w", phaseName, err)
		}

		entries, err := parsePhaseEntry(phaseName, value)
		if err != nil {
			return nil, err
		}
		if entries != nil {
			phases[phaseName] = entries
		}
	}
	return phases, nil
}

func parsePhaseEntry(phaseName string, value json.RawMessage) ([]instanceEntry, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, nil
	}

	// Legacy format: phase -> single path.
	if trimmed[0] == '"' {
		var path string
		if err := json.Unmarshal(trimmed, &path); err != nil {
			return nil, fmt.Errorf("parse matrix phase %s: %w", phaseName, err)
		}
		return []instanceEntry{{name: InstanceClear, files: []string{path}}}, nil
	}

	if trimmed[0] != '{' {
		log.Printf("wallpapers: ignoring malformed matrix entry for phase %s", phaseName)
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse matrix phase %s: %w", phaseName, err)
	}

	var entries []instanceEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse matrix phase %s: %w", phaseName, err)
		}
		instName := tok.(string)

		var files json.RawMessage
		if err := dec.Decode(&files); err != nil {
			return nil, fmt.Errorf("parse matrix %s/%s: %w", phaseName, instName, err)
		}

		filesTrimmed := bytes.TrimSpace(files)
		var list []string
		if len(filesTrimmed) > 0 && filesTrimmed[0] == '"' {
			var single string
			if err := json.Unmarshal(filesTrimmed, &single); err != nil {
				return nil, fmt.Errorf("parse matrix %s/%s: %w", phaseName, instName, err)
			}
			list = []string{single}
		} else {
			if err := json.Unmarshal(filesTrimmed, &list); err != nil {
				return nil, fmt.Errorf("parse matrix %s/%s: %w", phaseName, instName, err)
			}
		}
		entries = append(entries, instanceEntry{name: instName, files: list})
	}
	return entries, nil
}

func stringOr(v *string, def string) string {
	if v != nil {
		return *v
	}
	return def
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func floatOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
