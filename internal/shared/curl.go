// Utilities for turning a browser "Copy as cURL" command into portal session material.
package shared

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRe = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRe = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']+)'|(?:-b|--cookie)\s+"([^"]+)"`)
	curlDataRe   = regexp.MustCompile(`--data(?:-raw|-binary)?\s+(?:'[^']*'|"[^"]*")`)
	curlURLRe    = regexp.MustCompile(`'(https?://[^']+)'|"(https?://[^"]+)"|(https?://\S+)`)
)

// headers that describe a single request rather than the authenticated browser session.
var transientHeaders = map[string]bool{
	"content-length":  true,
	"content-type":    true,
	"accept-encoding": true,
	"host":            true,
	"connection":      true,
	"priority":        true,
}

// CurlCapture is the session material recovered from a cURL command.
type CurlCapture struct {
	URL     string            // Request URL, if present
	Headers map[string]string // Session-relevant headers (cookie excluded)
	Cookie  string            // Raw Cookie header value
}

// ParseCurlFile reads a .sh file containing a cURL command and extracts the session material.
func ParseCurlFile(filepath string) (*CurlCapture, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}
	return ParseCurlCommand(string(content))
}

// ParseCurlCommand parses a cURL command string.
//
// A -b/--cookie flag wins over a Cookie header. A command with neither headers nor cookie is rejected.
func ParseCurlCommand(cmd string) (*CurlCapture, error) {
	cmd = strings.ReplaceAll(cmd, "\\\n", " ")
	cmd = strings.ReplaceAll(cmd, "\\", "")

	capture := &CurlCapture{Headers: make(map[string]string)}

	// flag values may contain URLs (Referer, Origin), so look for the target only in what is left.
	bare := curlHeaderRe.ReplaceAllString(cmd, " ")
	bare = curlCookieRe.ReplaceAllString(bare, " ")
	bare = curlDataRe.ReplaceAllString(bare, " ")
	if m := curlURLRe.FindStringSubmatch(bare); m != nil {
		capture.URL = firstNonEmpty(m[1:]...)
	}

	var headerCookie string
	for _, match := range curlHeaderRe.FindAllStringSubmatch(cmd, -1) {
		key, value, ok := strings.Cut(firstNonEmpty(match[1:]...), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch lower := strings.ToLower(key); {
		case lower == "cookie":
			if headerCookie == "" {
				headerCookie = value
			}
		case transientHeaders[lower]:
		default:
			capture.Headers[key] = value
		}
	}

	if m := curlCookieRe.FindStringSubmatch(cmd); m != nil {
		capture.Cookie = firstNonEmpty(m[1:]...)
	} else {
		capture.Cookie = headerCookie
	}

	if len(capture.Headers) == 0 && capture.Cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}
	return capture, nil
}

// Origin returns scheme://host of the captured URL, or "" when no URL was captured.
func (c *CurlCapture) Origin() string {
	if c.URL == "" {
		return ""
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
