package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Host     string `toml:"host" mapstructure:"host"`
	Port     string `toml:"port" mapstructure:"port"`
	LogLevel string `toml:"log_level" mapstructure:"log_level"`
	Libonnx  string `toml:"libonnx" mapstructure:"libonnx"`

	HFRepo   string `toml:"hf_repo" mapstructure:"hf_repo"`
	HFToken  string `toml:"hf_token" mapstructure:"hf_token"`
	ModelDir string `toml:"model_dir" mapstructure:"model_dir"`
	CacheDir string `toml:"cache_dir" mapstructure:"cache_dir"`

	TopK         int      `toml:"top_k" mapstructure:"top_k"`
	MaxSeqLen    int      `toml:"max_seq_len" mapstructure:"max_seq_len"`
	PoolSize     int      `toml:"pool_size" mapstructure:"pool_size"`
	IntraThreads int      `toml:"intra_threads" mapstructure:"intra_threads"`
	LoadTimeout  Duration `toml:"load_timeout" mapstructure:"load_timeout"`
	FetchRetries int      `toml:"fetch_retries" mapstructure:"fetch_retries"`
	Preload      bool     `toml:"preload" mapstructure:"preload"`
}

// Duration is a time.Duration that reads from TOML strings like "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         "8000",
		LogLevel:     "info",
		HFRepo:       "duybk/emotionsdetect",
		TopK:         6,
		MaxSeqLen:    128,
		PoolSize:     1,
		FetchRetries: 3,
	}
}

var (
	cfg      = Default()
	cfgPath  = "config.toml"
	cfgErr   error
	loadOnce sync.Once
)

// SetPath changes the file read by C. It has no effect once C has been called.
func SetPath(path string) {
	cfgPath = path
}

// C returns the process configuration, reading it on first use.
func C() Config {
	loadOnce.Do(func() {
		c, err := Load(cfgPath)
		if err != nil {
			cfgErr = err
			return
		}
		cfg = c
	})
	return cfg
}

// Err reports the error encountered by the first call to C, if any.
func Err() error {
	C()
	return cfgErr
}

// Load reads path (a missing file is not an error), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return c, fmt.Errorf("failed to read config: %w", err)
			}
			if err := toml.Unmarshal(data, &c); err != nil {
				return c, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnv(c *Config) error {
	strs := map[string]*string{
		"HF_REPO":   &c.HFRepo,
		"HF_TOKEN":  &c.HFToken,
		"MODEL_DIR": &c.ModelDir,
		"CACHE_DIR": &c.CacheDir,
		"HOST":      &c.Host,
		"PORT":      &c.Port,
		"LIBONNX":   &c.Libonnx,
		"LOG_LEVEL": &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("TOP_K"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TOP_K %q: %w", v, err)
		}
		c.TopK = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.MaxSeqLen <= 0 {
		errs = append(errs, fmt.Errorf("max_seq_len must be positive, got %d", c.MaxSeqLen))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", c.PoolSize))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch_retries must not be negative, got %d", c.FetchRetries))
	}
	return errors.Join(errs...)
}

// SourceName identifies the configured model source for status responses.
func (c Config) SourceName() string {
	if c.ModelDir != "" {
		return c.ModelDir
	}
	return "hf_cache"
}
