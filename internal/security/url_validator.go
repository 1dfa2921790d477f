package security

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ProtocolValidator allows only http/https schemes.
type ProtocolValidator struct {
	allowed map[string]bool
}

func NewProtocolValidator() *ProtocolValidator {
	return &ProtocolValidator{allowed: map[string]bool{"http": true, "https": true}}
}

func (v *ProtocolValidator) Validate(scheme string) error {
	normalized := strings.ToLower(strings.TrimSpace(scheme))
	if !v.allowed[normalized] {
		return fmt.Errorf("protocol %q is not allowed", scheme)
	}
	return nil
}

// URLValidator orchestrates protocol/host/path validation for every
// outbound api-block request, guarding against SSRF and local file
// access.
type URLValidator struct {
	protocol *ProtocolValidator
	host     *HostValidator
	path     *PathValidator
}

func NewURLValidator() *URLValidator {
	return &URLValidator{protocol: NewProtocolValidator(), host: NewHostValidator(), path: NewPathValidator()}
}

// Validate parses urlStr and checks its scheme, hostname, path, and query
// string. Callers should invoke this once per resolved api-block URL,
// after the resolver has substituted templates but before dispatch.
func (v *URLValidator) Validate(ctx context.Context, urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if err := v.protocol.Validate(u.Scheme); err != nil {
		return err
	}
	if err := v.host.Validate(ctx, u.Hostname()); err != nil {
		return err
	}
	if err := v.path.Validate(u.Path); err != nil {
		return err
	}
	if err := v.path.Validate(u.RawQuery); err != nil {
		return err
	}
	return nil
}
