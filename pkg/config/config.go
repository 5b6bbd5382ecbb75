// Package config loads the transport's tunables (spec.md §6) from YAML,
// following the load/default pattern this codebase family's operator CLI
// uses for its own configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable spec.md §6 lists under "Configuration (from
// service locator)". Zero-value Config is not valid; use Default and
// override fields, or Load a YAML file.
type Config struct {
	// RoundTripBytes is the byte count equal to one round-trip time at
	// link rate: both the unscheduled budget and the receiver's target
	// in-flight window per active message.
	RoundTripBytes uint32 `yaml:"round_trip_bytes"`

	// GrantIncrement is how many bytes to extend a granted range by in
	// each new GRANT.
	GrantIncrement uint32 `yaml:"grant_increment"`

	// MaxGrantedMessages (D) bounds how many distinct-sender scheduled
	// messages the receiver actively grants at once.
	MaxGrantedMessages uint32 `yaml:"max_granted_messages"`

	// NumScheduledPriorities and NumUnscheduledPriorities partition the
	// driver's available priority classes between scheduled (GRANT-carried)
	// and unscheduled (sender-computed) traffic.
	NumScheduledPriorities   int `yaml:"num_scheduled_priorities"`
	NumUnscheduledPriorities int `yaml:"num_unscheduled_priorities"`

	// UnschedPrioCutoffs is an ascending vector of message-size thresholds
	// indexed to unscheduled priority classes: the smallest messages get
	// the highest priority. The last entry should be effectively
	// unbounded (e.g. ^uint32(0)) so every message size resolves to some
	// class.
	UnschedPrioCutoffs []uint32 `yaml:"unsched_prio_cutoffs"`

	// TimeoutIntervals is how many silent timer ticks before an RPC is
	// failed locally with TIMEOUT.
	TimeoutIntervals uint32 `yaml:"timeout_intervals"`

	// PingIntervals is how many silent timer ticks before a BUSY probe (or
	// a RESEND, if a partial message is outstanding) is sent.
	PingIntervals uint32 `yaml:"ping_intervals"`

	// MessageZeroCopyThreshold bounds how many bytes of a single incoming
	// message may be held as unreleased driver receive buffers before the
	// accumulator switches to copying, so a slow receiver cannot exhaust
	// the driver's buffer pool. Documented default: 10000 bytes (see
	// SPEC_FULL.md §4.9).
	MessageZeroCopyThreshold uint32 `yaml:"message_zero_copy_threshold"`

	// SmallMessageThreshold: messages at or below this size skip the
	// top-K send-selector bookkeeping and are transmitted directly, since
	// the bookkeeping costs more than sending one small packet.
	// Documented default: 500 bytes (see SPEC_FULL.md §4.9).
	SmallMessageThreshold uint32 `yaml:"small_message_threshold"`
}

// Default returns the measured defaults this codebase carries forward from
// the original implementation's own tuning (see DESIGN.md, "Open Question
// decisions"), suitable for a datacenter link with ~10 microsecond RTT at
// 10-25 Gbps.
func Default() Config {
	return Config{
		RoundTripBytes:           10000,
		GrantIncrement:           5000,
		MaxGrantedMessages:       8,
		NumScheduledPriorities:   6,
		NumUnscheduledPriorities: 2,
		UnschedPrioCutoffs:       []uint32{1500, ^uint32(0)},
		TimeoutIntervals:         50,
		PingIntervals:            3,
		MessageZeroCopyThreshold: 10000,
		SmallMessageThreshold:    500,
	}
}

// Validate checks the invariants the rest of the transport assumes hold.
func (c Config) Validate() error {
	if c.MaxGrantedMessages == 0 {
		return fmt.Errorf("config: max_granted_messages must be > 0")
	}
	if c.RoundTripBytes == 0 {
		return fmt.Errorf("config: round_trip_bytes must be > 0")
	}
	if c.GrantIncrement == 0 {
		return fmt.Errorf("config: grant_increment must be > 0")
	}
	if c.PingIntervals == 0 || c.TimeoutIntervals == 0 {
		return fmt.Errorf("config: ping_intervals and timeout_intervals must be > 0")
	}
	if c.PingIntervals >= c.TimeoutIntervals {
		return fmt.Errorf("config: ping_intervals (%d) must be less than timeout_intervals (%d)",
			c.PingIntervals, c.TimeoutIntervals)
	}
	if len(c.UnschedPrioCutoffs) == 0 {
		return fmt.Errorf("config: unsched_prio_cutoffs must not be empty")
	}
	for i := 1; i < len(c.UnschedPrioCutoffs); i++ {
		if c.UnschedPrioCutoffs[i] < c.UnschedPrioCutoffs[i-1] {
			return fmt.Errorf("config: unsched_prio_cutoffs must be ascending, got %v", c.UnschedPrioCutoffs)
		}
	}
	return nil
}

// DefaultPath returns the conventional per-user config file location:
// ~/.strand-transport/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".strand-transport", "config.yaml")
	}
	return filepath.Join(home, ".strand-transport", "config.yaml")
}

// Load reads Config from a YAML file at path, starting from Default() so a
// partial file only overrides the fields it mentions. A missing file is
// not an error; Default() is returned unmodified.
func Load(path string) (Config, error) {
	cfg := Default()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr,
			"warning: config file %s has permissions %04o — expected 0600. "+
				"An etcd locator's credentials may be exposed to other users.\n",
			path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
