package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Simulator SimulatorConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	simulator, err := loadSimulatorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Backend: backend, Simulator: simulator}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig 描述实时呼叫后端的连接配置。
type BackendConfig struct {
	Token        string
	Endpoint     string
	DialTimeout  time.Duration
	PingInterval time.Duration
}

// Realtime reports whether a token was supplied; without one the console runs on the simulator.
func (c BackendConfig) Realtime() bool {
	return c.Token != ""
}

func loadBackendConfig() (BackendConfig, error) {
	dialTimeout, err := parseDurationMSEnv("CALL_BACKEND_DIAL_TIMEOUT_MS", 10*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	pingInterval, err := parseDurationMSEnv("CALL_BACKEND_PING_INTERVAL_MS", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		Token:        strings.TrimSpace(os.Getenv("CALL_BACKEND_TOKEN")),
		Endpoint:     getEnvOrDefault("CALL_BACKEND_URL", "ws://localhost:8090/ws"),
		DialTimeout:  dialTimeout,
		PingInterval: pingInterval,
	}, nil
}

// SimulatorConfig 描述模拟后端的节奏。
type SimulatorConfig struct {
	TickInterval    time.Duration
	TranscriptEvery int
	TransferDelay   time.Duration
}

func loadSimulatorConfig() (SimulatorConfig, error) {
	tick, err := parseDurationMSEnv("SIM_TICK_INTERVAL_MS", time.Second)
	if err != nil {
		return SimulatorConfig{}, err
	}

	transferDelay, err := parseDurationMSEnv("SIM_TRANSFER_DELAY_MS", 900*time.Millisecond)
	if err != nil {
		return SimulatorConfig{}, err
	}

	every := 8
	if override, err := parseOptionalIntEnv("SIM_TRANSCRIPT_EVERY"); err != nil {
		return SimulatorConfig{}, err
	} else if override != nil {
		if *override < 1 {
			every = 1
		} else {
			every = *override
		}
	}

	return SimulatorConfig{
		TickInterval:    tick,
		TranscriptEvery: every,
		TransferDelay:   transferDelay,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationMSEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	ms, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if ms == nil {
		return defaultValue, nil
	}
	if *ms <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *ms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}
