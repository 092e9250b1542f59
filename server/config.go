// Package server wires reactor, transport, conn, http1, upgrade, websocket,
// tlsconfig, telemetry, ratelimit and compress together into the runnable
// HTTP server described by spec §4.9/§4.10/§6: one event-loop-owning Server
// per worker, plus a Workers shard that binds N of them to the same port
// via SO_REUSEPORT.
package server

import (
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/aeronet-go/aeronet/compress"
	"github.com/aeronet-go/aeronet/http1"
	"github.com/aeronet-go/aeronet/internal/obslog"
	"github.com/aeronet-go/aeronet/telemetry"
	"github.com/aeronet-go/aeronet/tlsconfig"
)

// ZeroCopyMode governs whether the server attempts MSG_ZEROCOPY sends
// (spec §6 "zerocopy_mode").
type ZeroCopyMode int

const (
	ZeroCopyDisabled ZeroCopyMode = iota
	ZeroCopyOpportunistic
	ZeroCopyEnabled
)

// CompressionConfig is the per-codec response-compression policy of spec
// §6 "compression".
type CompressionConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MinResponseBytes int  `mapstructure:"minResponseBytes" validate:"omitempty,min=0"`
}

// DecompressionConfig bounds request-body decompression (spec §6
// "decompression").
type DecompressionConfig struct {
	MaxInflatedBytes int64    `mapstructure:"maxInflatedBytes" validate:"omitempty,min=1"`
	AllowedCodecs    []string `mapstructure:"allowedCodecs"`
}

// WebSocketConfig is the per-endpoint default policy of spec §6
// "websocket"; a Router's RoutingResult.WebSocketEndpoint may override it
// per route.
type WebSocketConfig struct {
	MaxMessageBytes int64         `mapstructure:"maxMessageBytes" validate:"omitempty,min=1"`
	CloseTimeout    time.Duration `mapstructure:"closeTimeout"`
	Deflate         bool          `mapstructure:"deflate"`
	Subprotocols    []string      `mapstructure:"subprotocols"`
}

// Config is the full configuration surface spec §6 enumerates. Fields
// tagged immutable are captured at Start and silently restored by
// ApplyConfigUpdate if a later update attempts to change them (spec §4.9
// "Immutable config fields ... silently restored").
type Config struct {
	// Immutable at runtime (spec §6).
	Port       int  `mapstructure:"port" validate:"min=0,max=65535"`
	ReusePort  bool `mapstructure:"reusePort"`
	NumWorkers int  `mapstructure:"numWorkers" validate:"min=1"`

	EnableKeepAlive          bool          `mapstructure:"enableKeepAlive"`
	MaxRequestsPerConnection int           `mapstructure:"maxRequestsPerConnection" validate:"omitempty,min=1"`
	KeepAliveTimeout         time.Duration `mapstructure:"keepAliveTimeout"`

	HeaderReadTimeout time.Duration `mapstructure:"headerReadTimeout"`
	BodyReadTimeout   time.Duration `mapstructure:"bodyReadTimeout"`
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	MaintenanceEvery  time.Duration `mapstructure:"maintenanceEvery"`

	MaxHeaderBytes int `mapstructure:"maxHeaderBytes" validate:"omitempty,min=1"`
	MaxBodyBytes   int64 `mapstructure:"maxBodyBytes" validate:"omitempty,min=1"`

	MergeUnknownRequestHeaders bool          `mapstructure:"mergeUnknownRequestHeaders"`
	GlobalHeaders              http1.Headers `mapstructure:"-"`

	TLS *tlsconfig.Config `mapstructure:"tls"`

	Compression   CompressionConfig   `mapstructure:"compression"`
	Decompression DecompressionConfig `mapstructure:"decompression"`

	ZeroCopyMode      ZeroCopyMode `mapstructure:"zerocopyMode"`
	ZeroCopyThreshold int          `mapstructure:"zerocopyThreshold" validate:"omitempty,min=0"`

	WebSocket WebSocketConfig `mapstructure:"websocket"`

	HTTP2Enabled bool `mapstructure:"http2Enabled"`
	H2CEnabled   bool `mapstructure:"h2cEnabled"`

	// Immutable at runtime (spec §6 "telemetry ... immutable at runtime").
	TelemetryNamespace string `mapstructure:"telemetryNamespace"`

	HandshakeRateLimitPerSecond int `mapstructure:"handshakeRateLimitPerSecond" validate:"omitempty,min=1"`

	TLSHandshakeTimeout time.Duration `mapstructure:"tlsHandshakeTimeout"`

	Logger  *obslog.Logger    `mapstructure:"-"`
	Metrics *telemetry.Metrics `mapstructure:"-"`
	Codecs  *compress.Registry `mapstructure:"-"`
}

var validate = validator.New()

// Validate runs struct-tag validation plus the embedded TLS config's own
// Validate, the way tlsconfig.Config.Validate and the rest of the AMBIENT
// STACK validate configuration on apply.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.TLS != nil {
		return c.TLS.Validate()
	}
	return nil
}

// withDefaults fills zero-value timing/limits with the spec's defaults so
// a minimal Config still produces a working server.
func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}
	if c.HeaderReadTimeout <= 0 {
		c.HeaderReadTimeout = 10 * time.Second
	}
	if c.BodyReadTimeout <= 0 {
		c.BodyReadTimeout = 30 * time.Second
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaintenanceEvery <= 0 {
		c.MaintenanceEvery = time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 8 * 1024
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.WebSocket.CloseTimeout <= 0 {
		c.WebSocket.CloseTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = obslog.Discard()
	}
	if c.Metrics == nil {
		ns := c.TelemetryNamespace
		if ns == "" {
			ns = "aeronet"
		}
		c.Metrics = telemetry.New(ns)
	}
	if c.Codecs == nil {
		c.Codecs = compress.NewRegistry()
	}
	return c
}

// immutableSnapshot captures the fields spec §4.9 names as immutable, so a
// posted config update can have them silently restored.
type immutableSnapshot struct {
	port               int
	reusePort          bool
	numWorkers         int
	telemetryNamespace string
}

func (c Config) snapshotImmutable() immutableSnapshot {
	return immutableSnapshot{
		port:               c.Port,
		reusePort:          c.ReusePort,
		numWorkers:         c.NumWorkers,
		telemetryNamespace: c.TelemetryNamespace,
	}
}

func (s immutableSnapshot) restore(c *Config) {
	c.Port = s.port
	c.ReusePort = s.reusePort
	c.NumWorkers = s.numWorkers
	c.TelemetryNamespace = s.telemetryNamespace
}
