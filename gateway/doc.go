// Package gateway holds what the registry's external surfaces share: the HTTP
// server configuration and the HTTPHandler interface for mounting routes.
//
// The HTTP and websocket implementation lives in gateway/http.
//
// # Configuration
//
//	{
//	  "port": 8000,
//	  "enable_cors": true,
//	  "cors_origins": ["https://app.example.com"],
//	  "max_request_size": 1048576,
//	  "request_timeout": "30s",
//	  "tls": {"enabled": true, "cert_file": "server.pem", "key_file": "server-key.pem"}
//	}
//
// Validate fills defaults for zero values. CORS must name its origins
// explicitly; ["*"] is accepted for development.
package gateway
