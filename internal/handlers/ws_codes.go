// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handler. These give clients
// more specific closure reasons than the standard set.
const (
	BadSubprotocolError   = 3000 // client connected with an unsupported subprotocol
	InvalidAuthTokenError = 3001 // auth token was invalid or expired
)
