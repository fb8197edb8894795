package gateway

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Authorizer decides whether a remote address may open a session.
type Authorizer interface {
	Allow(ctx context.Context, remoteAddr string) error
}

// NoopAuthorizer admits everyone.
type NoopAuthorizer struct{}

func (NoopAuthorizer) Allow(ctx context.Context, remoteAddr string) error { return nil }

// AllowlistAuthorizer admits only hosts on the configured list. An empty
// list admits everyone.
type AllowlistAuthorizer struct {
	Allowed []string
}

func (a AllowlistAuthorizer) Allow(ctx context.Context, remoteAddr string) error {
	if len(a.Allowed) == 0 {
		return nil
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	for _, allowed := range a.Allowed {
		if strings.EqualFold(allowed, host) {
			return nil
		}
	}
	return fmt.Errorf("address %s not allowed", host)
}
