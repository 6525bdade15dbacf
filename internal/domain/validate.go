package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateLink checks user input before it reaches the write path.
// Title must be non-blank; URL must be absolute http(s) with a host.
func ValidateLink(rawURL, title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidLink)
	}

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidLink)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLink, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidLink)
	}

	return nil
}
