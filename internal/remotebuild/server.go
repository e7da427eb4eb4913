package remotebuild

import (
	"crypto/tls"
	"net/http"

	"github.com/0o001/visa-finalizer/internal/runtime/netstack"
)

// Server is a thin HTTP/3 front end around a Handler, delegating
// transport lifecycle to internal/runtime/netstack.HTTP3Server.
type Server struct {
	h3 *netstack.HTTP3Server
}

// NewServer builds a compile-as-a-service server bound to addr. A nil
// tlsCfg gets a self-signed certificate suitable for development via
// netstack.GenerateSelfSignedTLS.
func NewServer(addr string, tlsCfg *tls.Config, handler *Handler) (*Server, error) {
	if tlsCfg == nil {
		generated, err := netstack.GenerateSelfSignedTLS([]string{"localhost"}, 0)
		if err != nil {
			return nil, err
		}

		tlsCfg = generated
	}

	mux := http.NewServeMux()
	mux.Handle("/compile", handler)

	return &Server{h3: netstack.NewHTTP3Server(addr, tlsCfg, mux)}, nil
}

// Start begins serving and returns the bound address (useful when addr
// ends with ":0").
func (s *Server) Start() (string, error) { return s.h3.Start() }

// Stop shuts the server down.
func (s *Server) Stop() error { return s.h3.Stop() }

// Error returns a non-blocking channel receiving the first serve error.
func (s *Server) Error() <-chan error { return s.h3.Error() }
