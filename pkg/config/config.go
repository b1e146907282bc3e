// Package config handles loading and hot-reloading of engine tuning
// parameters.
package config

import (
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the tunables that the source reimplementation hard-codes as
// constants. A zero-value Config is invalid; use DefaultConfig or Load.
type Config struct {
	// TickRate is the fixed simulation rate shared by client and server.
	TickRate int `mapstructure:"TickRate"`

	// MaxSyncedEntityCount bounds the dense entity id space.
	MaxSyncedEntityCount int `mapstructure:"MaxSyncedEntityCount"`

	// MaxSavedStateDiff bounds the reassembly map, the snapshot pool, and
	// the number of inputs packed into a single outbound burst.
	MaxSavedStateDiff int `mapstructure:"MaxSavedStateDiff"`

	// InterpolateBufferSize is the lerp buffer capacity.
	InterpolateBufferSize int `mapstructure:"InterpolateBufferSize"`

	// InputBufferSize is the safety-rail capacity of the unacknowledged
	// input queue; exceeding it clears the queue entirely.
	InputBufferSize int `mapstructure:"InputBufferSize"`

	// MaxUnreliableDataSize is the assumed upper bound on a single
	// unreliable datagram, used to decide when an input must be dropped
	// rather than batched (see §4.5).
	MaxUnreliableDataSize int `mapstructure:"MaxUnreliableDataSize"`

	// JitterSampleCount is the size of the jitter ring buffer sampled on
	// every accepted diff fragment.
	JitterSampleCount int `mapstructure:"JitterSampleCount"`
}

// DefaultConfig returns the values the source client hard-codes, so
// behavior matches spec exactly with no configuration file present.
func DefaultConfig() Config {
	return Config{
		TickRate:              30,
		MaxSyncedEntityCount:  8192,
		MaxSavedStateDiff:     30,
		InterpolateBufferSize: 10,
		InputBufferSize:       128,
		MaxUnreliableDataSize: 1024,
		JitterSampleCount:     10,
	}
}

// C is the global configuration instance, matching the teacher's
// package-level singleton convention.
var C = DefaultConfig()

// mu guards both C and the watch state below. A single client process
// reads config rarely (at startup, and once per hot-reload), so this
// module doesn't need the teacher's separate read-mostly RWMutex for C
// plus a second mutex for watcher bookkeeping; one plain mutex covers
// both without meaningfully contending.
var mu sync.Mutex

var (
	watching       bool
	reloadCallback ReloadCallback
)

// ReloadCallback is invoked when the configuration is hot-reloaded.
type ReloadCallback func(old, new Config)

// Load reads configuration from file and environment, populating C.
// Defaults match DefaultConfig so a missing file is not an error.
func Load() error {
	viper.SetConfigName("entitysync")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.entitysync")

	d := DefaultConfig()
	viper.SetDefault("TickRate", d.TickRate)
	viper.SetDefault("MaxSyncedEntityCount", d.MaxSyncedEntityCount)
	viper.SetDefault("MaxSavedStateDiff", d.MaxSavedStateDiff)
	viper.SetDefault("InterpolateBufferSize", d.InterpolateBufferSize)
	viper.SetDefault("InputBufferSize", d.InputBufferSize)
	viper.SetDefault("MaxUnreliableDataSize", d.MaxUnreliableDataSize)
	viper.SetDefault("JitterSampleCount", d.JitterSampleCount)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return viper.Unmarshal(&C)
}

// Watch begins hot-reloading the config file, invoking callback with
// the old and new values after every reload. viper's underlying
// fsnotify watcher is started at most once per process — calling Watch
// again just swaps the callback rather than arming a second watcher.
// The returned stop function detaches the callback; since viper has no
// API to tear down its own watcher, later file changes are still
// absorbed into C, just without notifying anyone.
func Watch(callback ReloadCallback) (stop func(), err error) {
	mu.Lock()
	reloadCallback = callback
	if !watching {
		watching = true
		viper.WatchConfig()
		viper.OnConfigChange(onConfigFileChanged)
	}
	mu.Unlock()

	return func() {
		mu.Lock()
		reloadCallback = nil
		mu.Unlock()
	}, nil
}

func onConfigFileChanged(fsnotify.Event) {
	mu.Lock()
	old := C
	var next Config
	unmarshalErr := viper.Unmarshal(&next)
	if unmarshalErr == nil {
		C = next
	}
	cb := reloadCallback
	mu.Unlock()

	if unmarshalErr == nil && cb != nil {
		cb(old, next)
	}
}

// Get returns a copy of the current config safely.
func Get() Config {
	mu.Lock()
	defer mu.Unlock()
	return C
}

// Set updates the config safely. Intended for tests and for hosts that
// build their own Config without a file.
func Set(cfg Config) {
	mu.Lock()
	C = cfg
	mu.Unlock()
}
