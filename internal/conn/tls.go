package conn

import (
	"crypto/tls"
	"net"
	"strings"
)

// tlsClient wraps nc in a TLS client connection, deriving ServerName
// from addr when cfg doesn't already set one.
func tlsClient(nc net.Conn, cfg *tls.Config, addr string) net.Conn {
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		if host, _, ok := strings.Cut(addr, ":"); ok {
			cfg.ServerName = host
		} else {
			cfg.ServerName = addr
		}
	}
	return tls.Client(nc, cfg)
}
