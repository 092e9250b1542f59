// Package tlsconfig shapes the server's TLS posture (spec §6) into a
// validated, hot-reloadable *tls.Config, following the field-and-Validate
// layout nabbar-golib/certificates uses for the same purpose.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
)

// ClientAuthPolicy mirrors nabbar-golib/certificates/auth's enum, renamed
// to this domain's vocabulary.
type ClientAuthPolicy int

const (
	ClientAuthNone ClientAuthPolicy = iota
	ClientAuthRequest
	ClientAuthRequire
)

func (p ClientAuthPolicy) toStdlib() tls.ClientAuthType {
	switch p {
	case ClientAuthRequest:
		return tls.VerifyClientCertIfGiven
	case ClientAuthRequire:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}

// CipherPolicy selects a named cipher suite set rather than an explicit
// list, mirroring nabbar-golib/certificates/cipher's policy-by-name
// approach; ExplicitList falls back to Config.CipherSuites.
type CipherPolicy int

const (
	CipherDefault CipherPolicy = iota
	CipherModern
	CipherCompatibility
	CipherLegacy
	CipherExplicitList
)

// KTLSMode names the kernel TLS offload policy (spec §6 "ktls_mode"). It is
// carried in Config only; the server does not read it.
type KTLSMode int

const (
	KTLSDisabled KTLSMode = iota
	KTLSAuto
	KTLSEnabled
	KTLSRequired
)

// SessionTicketConfig configures TLS session resumption (spec §6).
type SessionTicketConfig struct {
	Enabled    bool          `mapstructure:"enabled" validate:"-"`
	Lifetime   time.Duration `mapstructure:"lifetime" validate:"-"`
	MaxKeys    int           `mapstructure:"maxKeys" validate:"omitempty,min=1"`
	StaticKeys [][32]byte    `mapstructure:"-" validate:"-"`
}

// Config is the validated, mapstructure/viper-friendly TLS configuration
// surface of spec §6: certs, ALPN, version bounds, cipher policy, client
// auth, trusted roots, session tickets, handshake rate limiting, and kTLS
// mode.
type Config struct {
	CertFile string `mapstructure:"certFile" validate:"required_without=Certificates"`
	KeyFile  string `mapstructure:"keyFile" validate:"required_without=Certificates"`

	Certificates []tls.Certificate `mapstructure:"-" validate:"-"`

	ALPN          []string `mapstructure:"alpn" validate:"dive,oneof=h2 http/1.1"`
	ALPNMustMatch bool     `mapstructure:"alpnMustMatch"`

	MinVersion uint16 `mapstructure:"minVersion" validate:"omitempty,oneof=769 770 771 772"`
	MaxVersion uint16 `mapstructure:"maxVersion" validate:"omitempty,oneof=769 770 771 772"`

	CipherPolicy CipherPolicy `mapstructure:"cipherPolicy"`
	CipherSuites []uint16     `mapstructure:"cipherSuites" validate:"-"`

	ClientAuth ClientAuthPolicy `mapstructure:"clientAuth"`
	ClientCAs  *x509.CertPool   `mapstructure:"-" validate:"-"`

	SessionTickets SessionTicketConfig `mapstructure:"sessionTickets"`

	HandshakeRateLimitPerSecond int `mapstructure:"handshakeRateLimitPerSecond" validate:"omitempty,min=1"`

	KTLSMode KTLSMode `mapstructure:"ktlsMode"`
}

var validate = validator.New()

// Validate runs struct-tag validation (spec's AMBIENT STACK: config
// validated via go-playground/validator/v10, as nabbar-golib/certificates
// does for its own Config).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("tlsconfig: %w", err)
	}
	if c.MinVersion != 0 && c.MaxVersion != 0 && c.MinVersion > c.MaxVersion {
		return fmt.Errorf("tlsconfig: minVersion > maxVersion")
	}
	return nil
}

var cipherPolicies = map[CipherPolicy][]uint16{
	CipherModern: {
		tls.TLS_AES_128_GCM_SHA256,
		tls.TLS_AES_256_GCM_SHA384,
		tls.TLS_CHACHA20_POLY1305_SHA256,
	},
	CipherCompatibility: {
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	},
	CipherLegacy: {
		tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_RSA_WITH_AES_256_CBC_SHA,
	},
}

// Build produces a *tls.Config plus a Context wrapper that survives
// hot-reload via reference counting (spec §6/§4.9: "a shared keep-alive
// reference to the TLS context ... enabling safe hot-reload").
func (c *Config) Build() (*Context, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	std := &tls.Config{
		NextProtos:       c.ALPN,
		ClientAuth:       c.ClientAuth.toStdlib(),
		ClientCAs:        c.ClientCAs,
		MinVersion:       c.MinVersion,
		MaxVersion:       c.MaxVersion,
		SessionTicketsDisabled: !c.SessionTickets.Enabled,
	}

	if len(c.Certificates) > 0 {
		std.Certificates = c.Certificates
	} else if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load cert/key: %w", err)
		}
		std.Certificates = []tls.Certificate{cert}
	}

	if c.CipherPolicy == CipherExplicitList {
		std.CipherSuites = c.CipherSuites
	} else if suites, ok := cipherPolicies[c.CipherPolicy]; ok {
		std.CipherSuites = suites
	}

	ctx := &Context{config: std, ticketStore: newTicketStore(c.SessionTickets)}
	return ctx, nil
}

// Context wraps a built *tls.Config with a reference count so in-flight
// connections keep an old context alive across a hot config reload (spec
// §6/§4.9 "keep-alive reference to the TLS context").
type Context struct {
	mu          sync.Mutex
	refs        int
	config      *tls.Config
	ticketStore *ticketStore
}

// Acquire returns the wrapped config and increments the keep-alive
// refcount; call Release when the connection that acquired it closes.
func (c *Context) Acquire() *tls.Config {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
	return c.config
}

func (c *Context) Release() {
	c.mu.Lock()
	c.refs--
	c.mu.Unlock()
}

func (c *Context) RefCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// ticketStore is a mutex-guarded rotation of session-ticket keys, shared
// across workers per spec §4.10 ("TLS session-ticket-key store ... for
// resumption across fds landing on different workers").
type ticketStore struct {
	mu      sync.Mutex
	keys    [][32]byte
	maxKeys int
}

func newTicketStore(cfg SessionTicketConfig) *ticketStore {
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 4
	}
	ts := &ticketStore{maxKeys: maxKeys}
	ts.keys = append(ts.keys, cfg.StaticKeys...)
	return ts
}

// Rotate prepends a new key, evicting the oldest once over maxKeys.
func (t *ticketStore) Rotate(key [32]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys = append([][32]byte{key}, t.keys...)
	if len(t.keys) > t.maxKeys {
		t.keys = t.keys[:t.maxKeys]
	}
}

func (t *ticketStore) Keys() [][32]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][32]byte, len(t.keys))
	copy(out, t.keys)
	return out
}
