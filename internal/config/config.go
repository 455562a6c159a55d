// Package config loads the endpoint configuration from YAML with environment
// overrides. File values win over defaults; LIFETAP_* environment variables
// win over the file, so deployments can patch single values without shipping
// a new config.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr     string        `yaml:"listenAddr"`
	PrivateKeyPath string        `yaml:"privateKeyPath"`
	FlowVersion    string        `yaml:"flowVersion"`
	SessionTTL     time.Duration `yaml:"sessionTTL"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`

	Downstream Downstream `yaml:"downstream"`
	RateLimit  RateLimit  `yaml:"rateLimit"`

	// AppSecret enables X-Hub-Signature-256 verification of the raw body
	// when set. Env-only in most deployments.
	AppSecret string `yaml:"appSecret"`
}

type Downstream struct {
	BaseURL    string        `yaml:"baseURL"`
	ServiceKey string        `yaml:"serviceKey"`
	Timeout    time.Duration `yaml:"timeout"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		ListenAddr:     "127.0.0.1:8080",
		PrivateKeyPath: "keys/private.pem",
		FlowVersion:    "3.0",
		SessionTTL:     30 * time.Minute,
		SweepInterval:  time.Minute,
		Downstream: Downstream{
			Timeout: 5 * time.Second,
		},
		RateLimit: RateLimit{RPS: 5, Burst: 10},
	}
}

// Load reads the first readable candidate path, merges it over the defaults
// and applies env overrides. A missing file is not an error: defaults plus
// environment is a valid deployment.
func Load(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml", "config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.PrivateKeyPath != "" {
		dst.PrivateKeyPath = src.PrivateKeyPath
	}
	if src.FlowVersion != "" {
		dst.FlowVersion = src.FlowVersion
	}
	if src.SessionTTL != 0 {
		dst.SessionTTL = src.SessionTTL
	}
	if src.SweepInterval != 0 {
		dst.SweepInterval = src.SweepInterval
	}
	if src.Downstream.BaseURL != "" {
		dst.Downstream.BaseURL = src.Downstream.BaseURL
	}
	if src.Downstream.ServiceKey != "" {
		dst.Downstream.ServiceKey = src.Downstream.ServiceKey
	}
	if src.Downstream.Timeout != 0 {
		dst.Downstream.Timeout = src.Downstream.Timeout
	}
	if src.RateLimit.RPS != 0 {
		dst.RateLimit.RPS = src.RateLimit.RPS
	}
	if src.RateLimit.Burst != 0 {
		dst.RateLimit.Burst = src.RateLimit.Burst
	}
	if src.AppSecret != "" {
		dst.AppSecret = src.AppSecret
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := getenv("LIFETAP_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("LIFETAP_PRIVATE_KEY_PATH"); v != "" {
		cfg.PrivateKeyPath = v
	}
	if v := getenv("LIFETAP_FLOW_VERSION"); v != "" {
		cfg.FlowVersion = v
	}
	if d, ok := getenvDuration("LIFETAP_SESSION_TTL"); ok {
		cfg.SessionTTL = d
	}
	if d, ok := getenvDuration("LIFETAP_SWEEP_INTERVAL"); ok {
		cfg.SweepInterval = d
	}
	if v := getenv("LIFETAP_DOWNSTREAM_URL"); v != "" {
		cfg.Downstream.BaseURL = v
	}
	if v := getenv("LIFETAP_SERVICE_KEY"); v != "" {
		cfg.Downstream.ServiceKey = v
	}
	if d, ok := getenvDuration("LIFETAP_DOWNSTREAM_TIMEOUT"); ok {
		cfg.Downstream.Timeout = d
	}
	if f, ok := getenvFloat("LIFETAP_RATE_LIMIT_RPS"); ok {
		cfg.RateLimit.RPS = f
	}
	if n, ok := getenvInt("LIFETAP_RATE_LIMIT_BURST"); ok {
		cfg.RateLimit.Burst = n
	}
	if v := getenv("LIFETAP_APP_SECRET"); v != "" {
		cfg.AppSecret = v
	}
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func getenvDuration(name string) (time.Duration, bool) {
	v := getenv(name)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func getenvFloat(name string) (float64, bool) {
	v := getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getenvInt(name string) (int, bool) {
	v := getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
