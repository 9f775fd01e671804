package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Default configuration values (production)
const (
	DefaultDomain   = "watchtogether.fly.dev"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = ""
	DefaultTURNPass = ""

	DefaultMaxReconnect   = 10
	DefaultReconnectDelay = 500 * time.Millisecond
)

// Config holds client-side configuration.
type Config struct {
	// Domain is the relay server domain.
	Domain string

	// WebSocketURL is the relay endpoint, constructed from the domain
	// unless overridden directly.
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// Reconnect tuning for the transport channel.
	MaxReconnect   int
	ReconnectDelay time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("WATCH_DOMAIN"), DefaultDomain)
	stunServer := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass)

	wsURL := firstOf(opts.ServerURL, os.Getenv("WATCH_SERVER_URL"))
	if wsURL == "" {
		// Local relays are reached without TLS; anything else is wss.
		if strings.HasPrefix(domain, "localhost") || strings.HasPrefix(domain, "127.0.0.1") {
			wsURL = fmt.Sprintf("ws://%s/ws", domain)
		} else {
			wsURL = fmt.Sprintf("wss://%s/ws", domain)
		}
	}

	return &Config{
		Domain:         domain,
		WebSocketURL:   wsURL,
		STUNServer:     stunServer,
		TURNServer:     turnServer,
		TURNUser:       turnUser,
		TURNPass:       turnPass,
		MaxReconnect:   DefaultMaxReconnect,
		ReconnectDelay: DefaultReconnectDelay,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
