package gateway

import (
	"net/http"
)

// HTTPHandler is implemented by anything that mounts routes on a shared mux.
//
// The prefix is the URL path prefix for the handler's routes and always ends
// in "/". Example registration:
//
//	func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
//	    mux.HandleFunc("GET "+prefix+"schemas", s.handleListSchemas)
//	}
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}
