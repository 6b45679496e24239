// Package config loads session settings from YAML with RELSTATE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Relation Relation `yaml:"relation"`
	Resource Resource `yaml:"resource"`
	Access   Access   `yaml:"access"`
	Boundary Boundary `yaml:"boundary"`
	Storage  Storage  `yaml:"storage"`
	Log      Log      `yaml:"log"`
	Hooks    Hooks    `yaml:"hooks"`
}

type Relation struct {
	EdgeTTL time.Duration `yaml:"edge_ttl"`
	ListTTL time.Duration `yaml:"list_ttl"`
}

type Resource struct {
	TTL     time.Duration `yaml:"ttl"`
	Gateway string        `yaml:"gateway"`
}

type Access struct {
	RootTTL time.Duration `yaml:"root_ttl"`
}

// Boundary bounds every call into the document store.
type Boundary struct {
	Timeout  time.Duration `yaml:"timeout"`
	Attempts uint          `yaml:"attempts"`
}

type Storage struct {
	Provider  string    `yaml:"provider"` // memory | ristretto | bigcache
	Codec     string    `yaml:"codec"`    // json | msgpack | cbor | protobuf
	MaxDecode int       `yaml:"max_decode"`
	Ristretto Ristretto `yaml:"ristretto"`
	Bigcache  Bigcache  `yaml:"bigcache"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

type Bigcache struct {
	LifeWindow         time.Duration `yaml:"life_window"`
	MaxEntrySize       int           `yaml:"max_entry_size"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`
}

type Log struct {
	Backend string `yaml:"backend"` // zap | logrus | slog | none
	Level   string `yaml:"level"`
}

type Hooks struct {
	Metrics    bool `yaml:"metrics"`
	AsyncQueue int  `yaml:"async_queue"` // 0 => hooks run inline
	LogEvents  bool `yaml:"log_events"`
}

// Default is usable as-is: in-memory JSON caches, no logging.
func Default() Config {
	return Config{
		Relation: Relation{EdgeTTL: 120 * time.Second, ListTTL: 120 * time.Second},
		Resource: Resource{TTL: 300 * time.Second, Gateway: "https://ipfs.io"},
		Access:   Access{RootTTL: 10 * time.Minute},
		Boundary: Boundary{Timeout: 10 * time.Second, Attempts: 2},
		Storage: Storage{
			Provider:  "memory",
			Codec:     "json",
			MaxDecode: 1 << 20,
			Ristretto: Ristretto{NumCounters: 100_000, MaxCost: 32 << 20, BufferItems: 64},
			Bigcache:  Bigcache{LifeWindow: 10 * time.Minute, MaxEntrySize: 512, HardMaxCacheSizeMB: 64},
		},
		Log: Log{Backend: "none", Level: "info"},
	}
}

// Load reads path (if non-empty) over Default, then applies environment
// overrides. A .env file in the working directory is loaded first when present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, errors.New("config: failed to load .env")
		}
	}
	applyEnv(&cfg, envSource())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envSource() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("RELSTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv overrides cfg with every key set in v.
// Keys map to RELSTATE_<KEY> with '.' replaced by '_'.
func applyEnv(cfg *Config, v *viper.Viper) {
	durations := map[string]*time.Duration{
		"edge_ttl":     &cfg.Relation.EdgeTTL,
		"list_ttl":     &cfg.Relation.ListTTL,
		"resource_ttl": &cfg.Resource.TTL,
		"root_ttl":     &cfg.Access.RootTTL,
		"call_timeout": &cfg.Boundary.Timeout,
	}
	for k, p := range durations {
		if v.IsSet(k) {
			*p = v.GetDuration(k)
		}
	}
	strs := map[string]*string{
		"gateway":     &cfg.Resource.Gateway,
		"provider":    &cfg.Storage.Provider,
		"codec":       &cfg.Storage.Codec,
		"log_backend": &cfg.Log.Backend,
		"log_level":   &cfg.Log.Level,
	}
	for k, p := range strs {
		if v.IsSet(k) {
			*p = strings.ToLower(strings.TrimSpace(v.GetString(k)))
		}
	}
	if v.IsSet("gateway") {
		// URLs are case-sensitive past the host
		cfg.Resource.Gateway = strings.TrimSpace(v.GetString("gateway"))
	}
	if v.IsSet("call_attempts") {
		cfg.Boundary.Attempts = v.GetUint("call_attempts")
	}
	if v.IsSet("metrics") {
		cfg.Hooks.Metrics = v.GetBool("metrics")
	}
	if v.IsSet("max_decode") {
		cfg.Storage.MaxDecode = v.GetInt("max_decode")
	}
	if v.IsSet("async_queue") {
		cfg.Hooks.AsyncQueue = v.GetInt("async_queue")
	}
}

// Validate rejects unknown kinds and non-positive freshness windows.
func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"relation.edge_ttl": c.Relation.EdgeTTL,
		"relation.list_ttl": c.Relation.ListTTL,
		"resource.ttl":      c.Resource.TTL,
		"access.root_ttl":   c.Access.RootTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Boundary.Timeout < 0 {
		errs = append(errs, fmt.Errorf("boundary.timeout must not be negative, got %s", c.Boundary.Timeout))
	}
	if !oneOf(c.Storage.Provider, "memory", "ristretto", "bigcache") {
		errs = append(errs, fmt.Errorf("unknown storage.provider %q", c.Storage.Provider))
	}
	if !oneOf(c.Storage.Codec, "", "json", "msgpack", "cbor", "protobuf") {
		errs = append(errs, fmt.Errorf("unknown storage.codec %q", c.Storage.Codec))
	}
	if !oneOf(c.Log.Backend, "", "none", "zap", "logrus", "slog") {
		errs = append(errs, fmt.Errorf("unknown log.backend %q", c.Log.Backend))
	}
	if !oneOf(c.Log.Level, "", "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	if c.Storage.Provider == "bigcache" && c.Storage.Bigcache.LifeWindow <= 0 {
		errs = append(errs, errors.New("storage.bigcache.life_window must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func oneOf(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}
