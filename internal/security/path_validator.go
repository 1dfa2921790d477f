package security

import (
	"fmt"
	"strings"
)

// PathValidator rejects URL paths carrying path-traversal or local-file
// access attempts, including common URL-encoded variants.
type PathValidator struct {
	blockedPatterns []string
	encodedPatterns []string
}

func NewPathValidator() *PathValidator {
	return &PathValidator{
		blockedPatterns: []string{
			"file://", "../", "..\\", "/etc/", "/proc/", "/sys/",
			"c:/", "c:\\", `\\.\pipe\`,
		},
		encodedPatterns: []string{
			"%2e%2e/", "%2e%2e%2f", "..%2f", "%2e%2e\\", "%2e%2e%5c", "..%5c",
		},
	}
}

func (v *PathValidator) Validate(urlPath string) error {
	if urlPath == "" {
		return nil
	}
	normalized := strings.ToLower(urlPath)
	for _, p := range v.blockedPatterns {
		if strings.Contains(normalized, p) {
			return fmt.Errorf("path contains blocked pattern %q", p)
		}
	}
	for _, p := range v.encodedPatterns {
		if strings.Contains(normalized, p) {
			return fmt.Errorf("path contains encoded traversal pattern %q", p)
		}
	}
	return nil
}
