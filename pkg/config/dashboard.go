package config

import (
	"strings"
	"time"
)

// Source kinds accepted by LOGDASH_SOURCE.
const (
	SourceWebSocket = "websocket"
	SourceRedis     = "redis"
)

// DashboardConfig holds runtime configuration for the dashboard service.
type DashboardConfig struct {
	Environment     string
	Addr            string
	LogLevel        string
	Source          string
	UpstreamURL     string
	DialTimeout     time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisChannel    string
	BufferCapacity  int
	RecentLimit     int
	Reconnect       bool
	ReconnectEvery  time.Duration
	HeartbeatEvery  time.Duration
	MaxStreamsPerIP int
	StreamLimitAddr string
	StreamLimitPass string
	StreamLimitDB   int
}

// LoadDashboardConfig constructs a DashboardConfig from environment variables.
func LoadDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("LOGDASH_ADDR", ":7080"),
		LogLevel:        GetString("LOGDASH_LOG_LEVEL", "info"),
		Source:          strings.ToLower(GetString("LOGDASH_SOURCE", SourceWebSocket)),
		UpstreamURL:     GetString("LOGDASH_UPSTREAM_URL", "ws://localhost:7075/logs"),
		DialTimeout:     GetDuration("LOGDASH_DIAL_TIMEOUT", 5*time.Second),
		RedisAddr:       GetString("LOGDASH_REDIS_ADDR", "localhost:6379"),
		RedisPassword:   GetString("LOGDASH_REDIS_PASSWORD", ""),
		RedisDB:         GetInt("LOGDASH_REDIS_DB", 0),
		RedisChannel:    GetString("LOGDASH_REDIS_CHANNEL", "logs"),
		BufferCapacity:  GetInt("LOGDASH_BUFFER", 1000),
		RecentLimit:     GetInt("LOGDASH_RECENT", 50),
		Reconnect:       GetBool("LOGDASH_RECONNECT", true),
		ReconnectEvery:  GetDuration("LOGDASH_RECONNECT_EVERY", 2*time.Second),
		HeartbeatEvery:  GetDuration("LOGDASH_SSE_HEARTBEAT", 15*time.Second),
		MaxStreamsPerIP: GetInt("LOGDASH_MAX_STREAMS_PER_IP", 8),
		StreamLimitAddr: GetString("LOGDASH_STREAM_LIMIT_REDIS_ADDR", ""),
		StreamLimitPass: GetString("LOGDASH_STREAM_LIMIT_REDIS_PASSWORD", ""),
		StreamLimitDB:   GetInt("LOGDASH_STREAM_LIMIT_REDIS_DB", 0),
	}
}
