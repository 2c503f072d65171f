package config

import "time"

// Config is the complete configuration of the posts CLI.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Pagination PaginationConfig `yaml:"pagination"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
}

// APIConfig describes the upstream posts API.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	PageParam  string        `yaml:"page_param"`
	LimitParam string        `yaml:"limit_param"`
}

// PaginationConfig controls the page coordinator and the batch fetcher.
type PaginationConfig struct {
	PageSize     int `yaml:"page_size"`
	StartingPage int `yaml:"starting_page"`
	Parallelism  int `yaml:"parallelism"`
}

// RedisConfig enables the revalidation cache and shared rate limit state.
// An empty Addr disables both.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	DB             int           `yaml:"db"`
	CacheRetention time.Duration `yaml:"cache_retention"`
	ErrorThreshold int           `yaml:"error_threshold"`
	ThrottleDelay  time.Duration `yaml:"throttle_delay"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig controls `posts serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "https://jsonplaceholder.typicode.com",
			UserAgent:  "posts-client/0.1.0",
			Timeout:    30 * time.Second,
			PageParam:  "_page",
			LimitParam: "_limit",
		},
		Pagination: PaginationConfig{
			PageSize:     10,
			StartingPage: 1,
			Parallelism:  4,
		},
		Redis: RedisConfig{
			CacheRetention: time.Hour,
			ThrottleDelay:  time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}
