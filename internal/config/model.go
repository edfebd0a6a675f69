// internal/config/model.go
//
// Typed configuration model for the site registry.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `SITES_`-prefixed environment overrides – highest precedence.
//
// Values of the form `vault:<mount>/<path>#<key>` are left untouched by the
// loader.  `ResolveSecrets` swaps them for plain strings once a Vault client
// is available, so the rest of the process never sees a Vault URI.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import (
	"fmt"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

//
// Database section
//

// Database holds the DSN template and pool tunables.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host, port,
// or flags without touching Vault.  It may carry a single `%s` verb that is
// replaced by `Password`, which is normally a `vault:` reference.
type Database struct {
	DSN             string        `koanf:"dsn"               validate:"required"`
	Password        string        `koanf:"password"`
	MaxOpenConns    int           `koanf:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Retries         int           `koanf:"retries"           validate:"gte=0"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	Migrate         bool          `koanf:"migrate"`
}

// BuildDSN fills the password verb of the DSN template, if present.
func (d Database) BuildDSN() string {
	if d.Password == "" || !containsVerb(d.DSN) {
		return d.DSN
	}
	return fmt.Sprintf(d.DSN, d.Password)
}

func containsVerb(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 's' {
			return true
		}
	}
	return false
}

//
// Log section
//

// Log controls the zap file sink.
type Log struct {
	Dir   string `koanf:"dir"   validate:"required"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

//
// Sites section
//

// Sites tunes custom-ID formatting and list defaults.
type Sites struct {
	IDPrefix     string `koanf:"id_prefix"      validate:"required,alphanum"`
	IDOffset     int64  `koanf:"id_offset"      validate:"gte=0"`
	IDWidth      int    `koanf:"id_width"       validate:"gte=1,lte=12"`
	DefaultLimit int    `koanf:"default_limit"  validate:"gte=1"`
	MaxIDRetries int    `koanf:"max_id_retries" validate:"gte=1"`

	// Get results cache.  Zero size or TTL disables it.
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl"  validate:"gte=0"`
}

//
// Optional integrations
//

// Geo points at a GeoLite2-City database.  Empty disables lookups.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

// Vault configures secret resolution.  An empty address falls back to
// VAULT_ADDR.
type Vault struct {
	Address string `koanf:"address"`
	Token   string `koanf:"token"`
	Renew   bool   `koanf:"renew"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // SITES_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Sites    Sites    `koanf:"sites"`
	Geo      Geo      `koanf:"geo"`
	Vault    Vault    `koanf:"vault"`
	Paths    Paths    `koanf:"-"`
}

// Defaults returns the baseline values the YAML and env layers override.
func Defaults() Config {
	return Config{
		HTTP: HTTP{
			ListenAddr:      ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: Database{
			MaxOpenConns:    15,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			Retries:         2,
			RetryBackoff:    500 * time.Millisecond,
		},
		Log: Log{
			Dir:   "logs",
			Level: "info",
		},
		Sites: Sites{
			IDPrefix:     "SITE",
			IDOffset:     20,
			IDWidth:      4,
			DefaultLimit: 100000,
			MaxIDRetries: 5,
		},
	}
}
