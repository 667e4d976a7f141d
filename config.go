package cachejar

import (
	"fmt"
	"os"
	"time"

	"github.com/always-cache/cachejar/cache"
	"github.com/always-cache/cachejar/cookie"
	cachekey "github.com/always-cache/cachejar/pkg/cache-key"
	responsetransformer "github.com/always-cache/cachejar/pkg/response-transformer"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration file layout.
type FileConfig struct {
	Cache   CacheConfig               `yaml:"cache"`
	Cookies CookieConfig              `yaml:"cookies"`
	Rules   responsetransformer.Rules `yaml:"rules"`
}

type CacheConfig struct {
	// DB is the sqlite file, "memory" for an in-memory sqlite db.
	// Entries are kept in a map if empty.
	DB              string           `yaml:"db"`
	Disable         bool             `yaml:"disable"`
	DefaultTTL      time.Duration    `yaml:"defaultTTL"`
	KeyFilter       string           `yaml:"keyFilter"`
	StaleOnError    bool             `yaml:"staleOnError"`
	Revalidate      RevalidatePolicy `yaml:"revalidate"`
	JanitorInterval time.Duration    `yaml:"janitorInterval"`
}

type CookieConfig struct {
	// File persists the jar as JSON, cookies are kept in memory if empty.
	File         string `yaml:"file"`
	Disable      bool   `yaml:"disable"`
	Strict       bool   `yaml:"strict"`
	PublicSuffix bool   `yaml:"publicSuffix"`
}

// LoadConfig reads and checks a configuration file.
func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", filename, err)
	}
	return config, config.Validate()
}

// Validate checks values that YAML decoding cannot.
func (c FileConfig) Validate() error {
	switch c.Cache.Revalidate {
	case "", RevalidateAlways, RevalidateNever, RevalidateSkip:
	default:
		return fmt.Errorf("unknown revalidate policy %q", c.Cache.Revalidate)
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("negative default TTL %s", c.Cache.DefaultTTL)
	}
	return nil
}

// CookieOptions returns the jar options of the configuration.
func (c CookieConfig) CookieOptions() []cookie.JarOption {
	var opts []cookie.JarOption
	if c.Strict {
		opts = append(opts, cookie.WithStrictMode())
	}
	if c.PublicSuffix {
		opts = append(opts, cookie.WithPublicSuffixes())
	}
	return opts
}

// Build opens the configured cache and cookie jar.
// The returned function closes them.
func (c FileConfig) Build() (Config, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var result *multierror.Error
		for _, fn := range closers {
			if err := fn(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}

	config := Config{
		DisableCache: c.Cache.Disable,
		DefaultTTL:   c.Cache.DefaultTTL,
		StaleOnError: c.Cache.StaleOnError,
		Revalidate:   c.Cache.Revalidate,
		Rules:        c.Rules,
	}
	if c.Cache.KeyFilter != "" {
		filter := cachekey.ParseKeyFilter(c.Cache.KeyFilter)
		config.KeyFilter = &filter
	}

	if !c.Cache.Disable && c.Cache.DB != "" {
		filename := c.Cache.DB
		if filename == "memory" {
			filename = cache.SQLiteMemory
		}
		db, err := cache.NewSQLiteCache(filename)
		if err != nil {
			return config, closeAll, err
		}
		closers = append(closers, db.Close)
		config.Cache = db
	}

	if !c.Cookies.Disable {
		opts := c.Cookies.CookieOptions()
		if c.Cookies.File != "" {
			jar, err := cookie.OpenOrCreateFileJar(c.Cookies.File, opts...)
			if err != nil {
				return config, closeAll, err
			}
			closers = append(closers, jar.Close)
			config.Jar = jar
		} else {
			config.Jar = cookie.NewJar(opts...)
		}
	}

	return config, closeAll, nil
}
