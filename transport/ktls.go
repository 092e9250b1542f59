//go:build linux

package transport

import "golang.org/x/sys/unix"

// KTLS wraps an established TLS transport and attempts to offload
// send-side record encryption to the kernel (spec §4.2's "kTLS" arm,
// enabled per spec §6's ktls_mode policy once a TLS handshake completes).
//
// Real kTLS offload needs the negotiated cipher, the traffic secrets and
// the record sequence number handed to the kernel via
// setsockopt(SOL_TLS, TLS_TX, struct tls12_crypto_info_*). crypto/tls does
// not export any of that once Handshake returns, and there is no
// ecosystem library in reach of this module that extracts it without
// forking the standard library's handshake state machine. EnableKTLSSend
// therefore always reports KTLSUnsupported, after attempting TCP_ULP.
// Nothing acts on tlsconfig.KTLSMode: the server never wraps an accepted
// connection in a KTLS, a Required mode does not close the connection, and
// the ktls_send_enable_fallbacks / ktls_send_forced_shutdowns counters are
// never incremented.
type KTLS struct {
	*TLS
	fd int
}

// NewKTLS returns a KTLS wrapping an already-handshaked TLS transport;
// EnableKTLSSend is what attaches the TLS ULP.
func NewKTLS(t *TLS) *KTLS {
	return &KTLS{TLS: t, fd: t.FD()}
}

func (k *KTLS) EnableKTLSSend() KTLSOutcome {
	if err := unix.SetsockoptString(k.fd, unix.SOL_TCP, unix.TCP_ULP, "tls"); err != nil {
		return KTLSUnsupported
	}
	// A real offload would now setsockopt(SOL_TLS, TLS_TX, crypto_info)
	// using secrets exported from the handshake. Not available from
	// crypto/tls; report unsupported rather than silently staying in
	// user-space mode under a caller that believes offload succeeded.
	return KTLSUnsupported
}
