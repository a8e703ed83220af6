package tls

import "crypto/tls"

// Info carries the two halves of one mTLS identity: the config a router
// dials out with, and the config it accepts inbound connections under.
// Both should trust the same CA, or the handshake fails in one direction.
type Info struct {
	ClientConfig *tls.Config
	ServerConfig *tls.Config
}
