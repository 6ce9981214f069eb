package debug

import (
	"net"

	"github.com/rs/zerolog"
)

// Accept waits for a single connection on host:port.
func Accept(host, port string, log zerolog.Logger) (net.Conn, error) {
	addr := net.JoinHostPort(host, port)
	log.Info().Str("addr", addr).Msg("waiting for connection")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	return ln.Accept()
}
