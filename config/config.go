// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package config implements the configuration for the swarm transport
// core.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultLogLevel = "NOTICE"

	defaultRequestTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 10 * time.Second

	defaultSwarmCacheTTL = 2 * time.Minute
	defaultPoWDifficulty = 10
	defaultMessageTTL    = 24 * time.Hour

	// absoluteMaxDelay bounds how long a retry backoff may sleep no
	// matter what the operator configures.
	absoluteMaxDelay = 5 * time.Minute
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lCfg.Level = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl
	return nil
}

// Storage is the persistent state configuration.
type Storage struct {
	// File is the path of the bolt database holding the retrieval
	// cursors, the received hash set and the peer cache.
	File string
}

func (sCfg *Storage) validate() error {
	if sCfg.File == "" {
		return errors.New("config: Storage: File is not set")
	}
	return nil
}

// Swarm is the swarm discovery configuration.
type Swarm struct {
	// SeedNodes are the bootstrap storage node addresses used for swarm
	// discovery, in "host:port" form.
	SeedNodes []string

	// CacheTTLSeconds is how long a resolved swarm is considered fresh.
	CacheTTLSeconds int
}

func (sCfg *Swarm) validate() error {
	if len(sCfg.SeedNodes) == 0 {
		return errors.New("config: Swarm: no SeedNodes configured")
	}
	for _, a := range sCfg.SeedNodes {
		if !strings.Contains(a, ":") {
			return fmt.Errorf("config: Swarm: SeedNode '%v' is not host:port", a)
		}
	}
	if sCfg.CacheTTLSeconds < 0 {
		return errors.New("config: Swarm: CacheTTLSeconds cannot be negative")
	}
	if sCfg.CacheTTLSeconds == 0 {
		sCfg.CacheTTLSeconds = int(defaultSwarmCacheTTL / time.Second)
	}
	return nil
}

// CacheTTL returns the swarm cache freshness window.
func (sCfg *Swarm) CacheTTL() time.Duration {
	return time.Duration(sCfg.CacheTTLSeconds) * time.Second
}

// Transport tunes the remote procedure call and retry behavior.
type Transport struct {
	// RequestTimeoutSeconds is the per-call HTTP timeout.
	RequestTimeoutSeconds int

	// MaxAttempts bounds whole-operation retries.
	MaxAttempts int

	// BaseDelayMilliseconds is the initial retry backoff.
	BaseDelayMilliseconds int

	// MaxDelayMilliseconds caps the retry backoff.
	MaxDelayMilliseconds int
}

func (tCfg *Transport) validate() error {
	if tCfg.RequestTimeoutSeconds < 0 || tCfg.MaxAttempts < 0 ||
		tCfg.BaseDelayMilliseconds < 0 || tCfg.MaxDelayMilliseconds < 0 {
		return errors.New("config: Transport: negative durations are invalid")
	}
	if tCfg.RequestTimeoutSeconds == 0 {
		tCfg.RequestTimeoutSeconds = int(defaultRequestTimeout / time.Second)
	}
	if tCfg.MaxAttempts == 0 {
		tCfg.MaxAttempts = defaultMaxAttempts
	}
	if tCfg.BaseDelayMilliseconds == 0 {
		tCfg.BaseDelayMilliseconds = int(defaultBaseDelay / time.Millisecond)
	}
	if tCfg.MaxDelayMilliseconds == 0 {
		tCfg.MaxDelayMilliseconds = int(defaultMaxDelay / time.Millisecond)
	}
	if time.Duration(tCfg.MaxDelayMilliseconds)*time.Millisecond > absoluteMaxDelay {
		tCfg.MaxDelayMilliseconds = int(absoluteMaxDelay / time.Millisecond)
	}
	return nil
}

// RequestTimeout returns the per-call HTTP timeout.
func (tCfg *Transport) RequestTimeout() time.Duration {
	return time.Duration(tCfg.RequestTimeoutSeconds) * time.Second
}

// BaseDelay returns the initial retry backoff.
func (tCfg *Transport) BaseDelay() time.Duration {
	return time.Duration(tCfg.BaseDelayMilliseconds) * time.Millisecond
}

// MaxDelay returns the retry backoff cap.
func (tCfg *Transport) MaxDelay() time.Duration {
	return time.Duration(tCfg.MaxDelayMilliseconds) * time.Millisecond
}

// Messages tunes outgoing message parameters.
type Messages struct {
	// PoWDifficulty is the proof of work difficulty, in leading zero
	// bits, required by the storage nodes.
	PoWDifficulty int

	// DefaultTTLMilliseconds is the time to live attached to outgoing
	// messages that do not specify one.
	DefaultTTLMilliseconds int64
}

func (mCfg *Messages) validate() error {
	if mCfg.PoWDifficulty < 0 || mCfg.PoWDifficulty > 256 {
		return errors.New("config: Messages: PoWDifficulty out of range")
	}
	if mCfg.PoWDifficulty == 0 {
		mCfg.PoWDifficulty = defaultPoWDifficulty
	}
	if mCfg.DefaultTTLMilliseconds < 0 {
		return errors.New("config: Messages: DefaultTTLMilliseconds cannot be negative")
	}
	if mCfg.DefaultTTLMilliseconds == 0 {
		mCfg.DefaultTTLMilliseconds = int64(defaultMessageTTL / time.Millisecond)
	}
	return nil
}

// Config is the top level configuration.
type Config struct {
	Logging   *Logging
	Storage   *Storage
	Swarm     *Swarm
	Transport *Transport
	Messages  *Messages
}

// FixupAndValidate applies defaults to missing sections and validates
// the configuration.
func (c *Config) FixupAndValidate() error {
	if c.Logging == nil {
		c.Logging = &defaultLogging
	}
	if c.Storage == nil {
		return errors.New("config: No Storage block was present")
	}
	if c.Swarm == nil {
		return errors.New("config: No Swarm block was present")
	}
	if c.Transport == nil {
		c.Transport = &Transport{}
	}
	if c.Messages == nil {
		c.Messages = &Messages{}
	}

	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Swarm.validate(); err != nil {
		return err
	}
	if err := c.Transport.validate(); err != nil {
		return err
	}
	return c.Messages.validate()
}

// Load parses and validates the provided buffer b as a config file body
// and returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
