// Package netutil holds network helpers shared by outbound HTTP clients.
package netutil

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

// DefaultDNSCacheTTL is how often cached lookups are refreshed.
const DefaultDNSCacheTTL = 5 * time.Minute

var (
	globalResolver     *dnscache.Resolver
	globalResolverOnce sync.Once
)

// GetDNSResolver returns the process-wide caching resolver.
func GetDNSResolver() *dnscache.Resolver {
	globalResolverOnce.Do(func() {
		globalResolver = &dnscache.Resolver{}
	})
	return globalResolver
}

// RunDNSRefresh refreshes the cache every ttl until ctx is done. Entries not
// used since the previous refresh are dropped.
func RunDNSRefresh(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultDNSCacheTTL
	}
	resolver := GetDNSResolver()

	log.Debug().Dur("ttl", ttl).Msg("DNS cache refresher started")

	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolver.Refresh(true)
			log.Debug().Dur("ttl", ttl).Msg("DNS cache refreshed")
		}
	}
}

// DialContextWithCache is a DialContext function that resolves through the DNS cache.
func DialContextWithCache(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	if ip := net.ParseIP(host); ip != nil {
		return dialer.DialContext(ctx, network, address)
	}

	ips, err := GetDNSResolver().LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{
			Err:  "no IP addresses found",
			Name: host,
		}
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
