package gateway

import "time"

// Session is one connected client on the TCP front.
type Session struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
}
