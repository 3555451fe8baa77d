package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the layout of a triestress TOML file:
//
//	[workload]
//	readers = 8
//	writers = 1
//	keys = 64
//	duration = "2s"
//	remove_ratio = 0.1
//	seed = 1
type Config struct {
	Workload Workload `toml:"workload"`
}

// Workload describes the load put on a Store.
type Workload struct {
	Readers     int     `toml:"readers"`
	Writers     int     `toml:"writers"`
	Keys        int     `toml:"keys"`
	Duration    string  `toml:"duration"`
	RemoveRatio float64 `toml:"remove_ratio"`
	Seed        int64   `toml:"seed"`
}

func defaultWorkload() Workload {
	return Workload{
		Readers:     4,
		Writers:     1,
		Keys:        64,
		Duration:    "2s",
		RemoveRatio: 0.1,
		Seed:        1,
	}
}

// loadConfig reads a TOML file over the default workload, so that the file
// only needs to mention what it changes.
func loadConfig(path string) (Workload, error) {
	config := Config{Workload: defaultWorkload()}
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return Workload{}, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return Workload{}, fmt.Errorf("load %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return config.Workload, nil
}

func (w Workload) validate() (time.Duration, error) {
	var errs []error
	if w.Readers < 0 {
		errs = append(errs, fmt.Errorf("readers must not be negative, got %d", w.Readers))
	}
	if w.Writers < 1 {
		errs = append(errs, fmt.Errorf("need at least one writer, got %d", w.Writers))
	}
	if w.Keys < 1 {
		errs = append(errs, fmt.Errorf("need at least one key, got %d", w.Keys))
	}
	if w.RemoveRatio < 0 || w.RemoveRatio > 1 {
		errs = append(errs, fmt.Errorf("remove_ratio must be within [0, 1], got %v", w.RemoveRatio))
	}
	duration, err := time.ParseDuration(w.Duration)
	if err != nil {
		errs = append(errs, fmt.Errorf("duration: %w", err))
	} else if duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %v", duration))
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return duration, nil
}
