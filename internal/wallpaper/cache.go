package wallpaper

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"tgwall/internal/phase"
)

// cacheState is the persisted last-applied triple. The weather field holds
// the instance name; the naming follows the on-disk format.
type cacheState struct {
	Phase   string `json:"phase"`
	Weather string `json:"weather"`
	File    string `json:"file"`
}

// Cache remembers the last successfully applied wallpaper so unchanged ticks
// skip the remote call. All I/O failures degrade to "always apply"; losing a
// cache entry only costs one redundant update.
type Cache struct {
	path    string
	enabled bool
}

func NewCache(path string, enabled bool) *Cache {
	c := &Cache{path: path, enabled: enabled}
	c.init()
	return c
}

func (c *Cache) init() {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		log.Printf("cache: could not create directory: %v", err)
		return
	}
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		empty := cacheState{}
		if data, err := json.Marshal(empty); err == nil {
			if err := os.WriteFile(c.path, data, 0o644); err != nil {
				log.Printf("cache: could not initialize %s: %v", c.path, err)
			}
		}
	}
}

func (c *Cache) load() cacheState {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return cacheState{}
	}
	var state cacheState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("cache: could not parse %s: %v", c.path, err)
		return cacheState{}
	}
	return state
}

// ShouldSkip reports whether the proposed triple matches the last applied
// one. Always false when caching is disabled.
func (c *Cache) ShouldSkip(p phase.Phase, instance, file string) bool {
	if !c.enabled {
		return false
	}
	state := c.load()
	return state.Phase == string(p) && state.Weather == instance && state.File == file
}

// Save overwrites the persisted triple. Called only after a successful apply.
func (c *Cache) Save(p phase.Phase, instance, file string) {
	state := cacheState{Phase: string(p), Weather: instance, File: file}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("cache: could not encode state: %v", err)
		return
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		log.Printf("cache: could not write %s: %v", c.path, err)
	}
}
