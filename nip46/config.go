package nip46

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the bunker's runtime configuration: default permissions
// granted on connect, rate-limit tiers, and timeout durations. Grounded
// on the teacher's relays_config.go load-from-file-with-fallback pattern
// but expressed as YAML, the format the rest of the example pack uses
// for service config.
type Policy struct {
	DefaultPermissions []string      `yaml:"defaultPermissions"`
	Relays             []string      `yaml:"relays"`
	RateLimitBurst     int           `yaml:"rateLimitBurst"`     // per 10s
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
	RateLimitPerHour   int           `yaml:"rateLimitPerHour"`
	ReplayWindow       time.Duration `yaml:"replayWindow"`
	AuthTimeout        time.Duration `yaml:"authTimeout"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`

	// ReplayStoreURL, if set, points NewSigner at a Redis-backed replay
	// ledger (redis://[:password@]host:port/db) instead of the default
	// in-memory one, so several bunker instances behind the same signing
	// key share one replay window.
	ReplayStoreURL string `yaml:"replayStoreURL"`
}

var (
	policy     *Policy
	policyOnce sync.Once
	policyMu   sync.RWMutex
)

// GetPolicy returns the process-wide bunker policy, loading it on first
// use from BUNKER_CONFIG (default config/bunker.yaml) and falling back
// to DefaultPolicy() when the file is absent or invalid.
func GetPolicy() *Policy {
	policyOnce.Do(func() {
		policyMu.Lock()
		defer policyMu.Unlock()
		policy = loadPolicyFromFile()
	})
	policyMu.RLock()
	defer policyMu.RUnlock()
	return policy
}

// ReloadPolicy re-reads the policy file, replacing the cached value.
func ReloadPolicy() {
	newPolicy := loadPolicyFromFile()
	policyMu.Lock()
	defer policyMu.Unlock()
	policy = newPolicy
	slog.Info("bunker policy reloaded")
}

func loadPolicyFromFile() *Policy {
	path := os.Getenv("BUNKER_CONFIG")
	if path == "" {
		path = "config/bunker.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("bunker config not found, using defaults", "path", path)
		} else {
			slog.Warn("could not read bunker config, using defaults", "path", path, "error", err)
		}
		return DefaultPolicy()
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		slog.Error("invalid bunker config, using defaults", "path", path, "error", err)
		return DefaultPolicy()
	}

	fillPolicyDefaults(&p)
	return &p
}

// DefaultPolicy returns the built-in policy used when no config file is
// present.
func DefaultPolicy() *Policy {
	p := &Policy{
		DefaultPermissions: []string{"connect", "get_public_key", "ping", "disconnect"},
		Relays: []string{
			"wss://relay.nsec.app",
			"wss://relay.damus.io",
		},
	}
	fillPolicyDefaults(p)
	return p
}

func fillPolicyDefaults(p *Policy) {
	if p.RateLimitBurst == 0 {
		p.RateLimitBurst = 10
	}
	if p.RateLimitPerMinute == 0 {
		p.RateLimitPerMinute = 60
	}
	if p.RateLimitPerHour == 0 {
		p.RateLimitPerHour = 1000
	}
	if p.ReplayWindow == 0 {
		p.ReplayWindow = 2 * time.Minute
	}
	if p.AuthTimeout == 0 {
		p.AuthTimeout = 5 * time.Minute
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = 30 * time.Second
	}
}
