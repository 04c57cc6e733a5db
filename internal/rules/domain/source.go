package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NamePlaceholder is replaced by the source identifier in locator templates.
const NamePlaceholder = "{name}"

// Source describes one remote rule list.
// Label is human readable, Identifier is the upstream list name and
// Locator is the URL the list is fetched from.
type Source struct {
	Label      string
	Identifier string
	Locator    *url.URL
}

// NewSource builds a Source, validating that the locator is an absolute
// http(s) URL.
func NewSource(label, identifier, locator string) (Source, error) {
	identifier = strings.TrimSpace(identifier)
	label = strings.TrimSpace(label)
	if identifier == "" {
		return Source{}, fmt.Errorf("source identifier must not be empty")
	}
	if label == "" {
		label = identifier
	}
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return Source{}, fmt.Errorf("source %q: invalid locator: %w", identifier, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Source{}, fmt.Errorf("source %q: locator scheme must be http or https, got %q", identifier, u.Scheme)
	}
	if u.Host == "" {
		return Source{}, fmt.Errorf("source %q: locator has no host", identifier)
	}
	return Source{Label: label, Identifier: identifier, Locator: u}, nil
}

// ExpandTemplate substitutes every NamePlaceholder in tmpl with the
// path-escaped identifier.
func ExpandTemplate(tmpl, identifier string) string {
	return strings.ReplaceAll(tmpl, NamePlaceholder, url.PathEscape(identifier))
}

// URL returns the locator as a string, or "" when unset.
func (s Source) URL() string {
	if s.Locator == nil {
		return ""
	}
	return s.Locator.String()
}

// Payload is the raw result of fetching one Source.
// Err != nil means no text is present.
type Payload struct {
	Source     Source
	Text       string
	Err        error
	StatusCode int
	Elapsed    time.Duration
}

// Ok reports whether the payload carries text.
func (p Payload) Ok() bool { return p.Err == nil }
