// Package zeroconf advertises the panmix HTTP API over mDNS/DNS-SD so LAN
// remotes can find it without configuration.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type registered for the API.
const ServiceType = "_panmix._tcp"

// Service manages mDNS service registration.
type Service struct {
	instance string
	port     int
	txt      []string
}

// New creates a Service advertising instance on port. version and
// authRequired are published in the TXT record.
func New(instance string, port int, version string, authRequired bool) *Service {
	return &Service{
		instance: instance,
		port:     port,
		txt:      TXTRecords(version, authRequired),
	}
}

// TXTRecords returns the TXT record set for the advertisement.
func TXTRecords(version string, authRequired bool) []string {
	return []string{
		"path=/api",
		"version=" + version,
		fmt.Sprintf("auth=%t", authRequired),
	}
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	if s.port <= 0 {
		return fmt.Errorf("zeroconf: invalid port %d", s.port)
	}
	server, err := zeroconf.Register(
		s.instance,  // instance name
		ServiceType, // service type
		"local.",    // domain
		s.port,      // port
		s.txt,       // TXT records
		nil,         // ifaces; nil means all interfaces
	)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.instance,
		"type", ServiceType,
		"port", s.port,
	)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}
