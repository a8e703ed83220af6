// Package secureconn builds the *tls.Config pairs a router's transport
// driver needs for mutual TLS: one for dialing out, one for accepting
// inbound connections, both trusting the same CA pool.
package secureconn

import (
	"crypto/tls"
	"crypto/x509"

	xoscartls "github.com/luweizheng/xoscar/tls"
)

// SecureConn defines the mTLS configuration
type SecureConn struct {
	rootCA *x509.CertPool
	cert   *tls.Certificate
}

// NewSecureConn creates an instance of mTLS configuration
func NewSecureConn(rootCA *x509.CertPool, cert *tls.Certificate) *SecureConn {
	return &SecureConn{
		rootCA: rootCA,
		cert:   cert,
	}
}

// NewSecureConnFromPEMBlocks create an instance of mTLS configuration from binary representations
// of the root certificate, the private key and the certificate file
func NewSecureConnFromPEMBlocks(rootCAsPEMBlock, keyPEMBlock, certPEMBlock []byte) (*SecureConn, error) {
	certpool := x509.NewCertPool()
	certpool.AppendCertsFromPEM(rootCAsPEMBlock)
	x509KeyPair, err := tls.X509KeyPair(certPEMBlock, keyPEMBlock)
	if err != nil {
		return nil, err
	}
	return &SecureConn{
		rootCA: certpool,
		cert:   &x509KeyPair,
	}, nil
}

// SecureClient returns the TLS client configuration
// that is required to make secured connection to a secured server
// on the remote node
func (conn *SecureConn) SecureClient() *tls.Config {
	return &tls.Config{
		RootCAs:      conn.rootCA,
		Certificates: []tls.Certificate{*conn.cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.CurveP521,
			tls.CurveP384,
			tls.CurveP256,
		},
	}
}

// SecureServer return the TLS server configuration
// required to handle secured connection from a remote node
func (conn *SecureConn) SecureServer() *tls.Config {
	return &tls.Config{
		ClientCAs:    conn.rootCA,
		Certificates: []tls.Certificate{*conn.cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.CurveP521,
			tls.CurveP384,
			tls.CurveP256,
		},
	}
}

// Info builds the client/server pair the tcp transport driver consumes,
// so a pool configured with a CA/cert/key needs only one mTLS setup call
// regardless of whether it ends up dialing, listening, or both.
func (conn *SecureConn) Info() *xoscartls.Info {
	return &xoscartls.Info{
		ClientConfig: conn.SecureClient(),
		ServerConfig: conn.SecureServer(),
	}
}
