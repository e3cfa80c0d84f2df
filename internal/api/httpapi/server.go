package httpapi

import (
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewServer builds the HTTP server with h2c (HTTP/2 cleartext) support so
// reverse proxies can multiplex the event stream without TLS termination
// on this process.
func NewServer(addr string, handler *Handler) *http.Server {
	mux := http.NewServeMux()
	handler.Register(mux)

	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
}
