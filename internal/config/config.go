// Package config loads and hot-reloads the ingest pipeline's configuration
// surface (spec.md §6.4), following the teacher-adjacent pattern of
// yaml.v3 for the file format and fsnotify for change detection.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Region is a rectangular restricted geofence, configured by the operator.
type Region struct {
	Name      string  `yaml:"name"`
	MinLat    float64 `yaml:"minLat"`
	MaxLat    float64 `yaml:"maxLat"`
	MinLon    float64 `yaml:"minLon"`
	MaxLon    float64 `yaml:"maxLon"`
	Forbidden bool    `yaml:"forbidden"`
}

// Contains reports whether (lat, lon) falls within the region's bounds.
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// Config mirrors the configuration table in spec.md §6.4.
type Config struct {
	Queue struct {
		Enabled  bool   `yaml:"enabled"`
		Capacity int    `yaml:"capacity"`
		Workers  int    `yaml:"workers"`
		Fallback string `yaml:"fallback"` // sync | reject | drop
	} `yaml:"queue"`

	RateLimit struct {
		Enabled bool `yaml:"enabled"`
		Global  struct {
			PerSecond int64 `yaml:"perSecond"`
		} `yaml:"global"`
		Address struct {
			PerMinute      int64 `yaml:"perMinute"`
			BurstPerMinute int64 `yaml:"burstPerMinute"`
		} `yaml:"address"`
		Device struct {
			PerMinute int64 `yaml:"perMinute"`
		} `yaml:"device"`
		Cache struct {
			MaxSize int `yaml:"maxSize"`
		} `yaml:"cache"`
	} `yaml:"ratelimit"`

	Alert struct {
		RetentionMonths int `yaml:"retentionMonths"`
	} `yaml:"alert"`

	Processors struct {
		Speed struct {
			ThresholdKmh       float64 `yaml:"thresholdKmh"`
			MinIntervalSeconds float64 `yaml:"minIntervalSeconds"`
		} `yaml:"speed"`
		Anomaly struct {
			ExtremeLatitude float64 `yaml:"extremeLatitude"`
		} `yaml:"anomaly"`
		Geofence struct {
			Regions []Region `yaml:"regions"`
		} `yaml:"geofence"`
	} `yaml:"processors"`
}

// Default returns the configuration defaults listed in spec.md §6.4.
func Default() *Config {
	c := &Config{}
	c.Queue.Enabled = true
	c.Queue.Capacity = 10000
	c.Queue.Workers = 8
	c.Queue.Fallback = "sync"

	c.RateLimit.Enabled = true
	c.RateLimit.Global.PerSecond = 500
	c.RateLimit.Address.PerMinute = 200
	c.RateLimit.Address.BurstPerMinute = 20
	c.RateLimit.Device.PerMinute = 100
	c.RateLimit.Cache.MaxSize = 100000

	c.Alert.RetentionMonths = 3

	c.Processors.Speed.ThresholdKmh = 150
	c.Processors.Speed.MinIntervalSeconds = 30
	c.Processors.Anomaly.ExtremeLatitude = 80

	return c
}

// Load reads and parses a YAML configuration file, overlaying it on the
// defaults so a partial file only overrides what it specifies.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// Manager holds the live configuration and optionally watches its source
// file for changes, swapping the pointer atomically under a lock so
// readers never observe a partially-updated struct.
type Manager struct {
	mu      sync.RWMutex
	current *Config
	path    string
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewManager creates a manager seeded with cfg (or Default() if nil).
func NewManager(path string, cfg *Config) *Manager {
	if cfg == nil {
		cfg = Default()
	}
	return &Manager{current: cfg, path: path}
}

// Get returns the current configuration snapshot.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Watch starts an fsnotify watch on the manager's source file, reloading
// on every write event. It is a no-op if path is empty. Call Stop to
// release the watcher.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	if err := w.Add(m.path); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config %s: %w", m.path, err)
	}
	m.watcher = w
	m.stop = make(chan struct{})
	go m.watchLoop()
	return nil
}

func (m *Manager) watchLoop() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debounce.Reset(50 * time.Millisecond)
			}
		case <-debounce.C:
			if cfg, err := Load(m.path); err == nil {
				m.mu.Lock()
				m.current = cfg
				m.mu.Unlock()
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		case <-m.stop:
			return
		}
	}
}

// Stop releases the file watcher, if one was started.
func (m *Manager) Stop() {
	if m.watcher != nil {
		close(m.stop)
		_ = m.watcher.Close()
	}
}
