package marionette

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Client is a typed WebDriver-over-Marionette command surface built on top
// of a Conn and bound to one negotiated session, grounded on
// original_source/crates/marionette/src/webdriver.rs.
type Client struct {
	conn      *Conn
	SessionID string
}

// NewSessionTimeout bounds WebDriver:NewSession per spec.md §5.
const NewSessionTimeout = 60 * time.Second

// QuitTimeout bounds the best-effort Marionette:Quit sent during handle
// teardown per spec.md §4.D "Drop order".
const QuitTimeout = 2 * time.Second

// NewClient negotiates a WebDriver session over conn and returns a typed
// client bound to it.
func NewClient(ctx context.Context, conn *Conn) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, NewSessionTimeout)
	defer cancel()

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := conn.Call(ctx, "WebDriver:NewSession", struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	return &Client{conn: conn, SessionID: resp.SessionID}, nil
}

// SetWindowRect resizes the browser window.
func (c *Client) SetWindowRect(ctx context.Context, width, height int) error {
	params := struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}{Width: width, Height: height}

	if err := c.conn.Call(ctx, "WebDriver:SetWindowRect", params, nil); err != nil {
		return fmt.Errorf("set window rect: %w", err)
	}
	return nil
}

// Navigate loads url and returns once the browser reports DOMContentLoaded.
func (c *Client) Navigate(ctx context.Context, url string) error {
	params := struct {
		URL string `json:"url"`
	}{URL: url}

	if err := c.conn.Call(ctx, "WebDriver:Navigate", params, nil); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// ExecuteScript runs script in the page context and returns its JSON result.
func (c *Client) ExecuteScript(ctx context.Context, script string, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}
	params := struct {
		Script string `json:"script"`
		Args   []any  `json:"args"`
	}{Script: script, Args: args}

	var result struct {
		Value any `json:"value"`
	}
	if err := c.conn.Call(ctx, "WebDriver:ExecuteScript", params, &result); err != nil {
		return nil, fmt.Errorf("execute script: %w", err)
	}
	return result.Value, nil
}

// FindElementUsing selects the element-location strategy for FindElement.
type FindElementUsing string

const (
	UsingCSSSelector FindElementUsing = "css selector"
	UsingXPath       FindElementUsing = "xpath"
)

const webElementIdentifier = "element-6066-11e4-a52e-4f735466cecf"

// FindElement locates one element. A server response with zero matches is
// surfaced as ErrElementNotFound, a request-scoped error that leaves the
// handle Healthy (spec.md §7).
func (c *Client) FindElement(ctx context.Context, using FindElementUsing, value string) (string, error) {
	params := struct {
		Using FindElementUsing `json:"using"`
		Value string           `json:"value"`
	}{Using: using, Value: value}

	var result struct {
		Value map[string]string `json:"value"`
	}
	err := c.conn.Call(ctx, "WebDriver:FindElement", params, &result)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == "no such element" {
			return "", ErrElementNotFound
		}
		return "", fmt.Errorf("find element: %w", err)
	}

	id, ok := result.Value[webElementIdentifier]
	if !ok {
		return "", ErrElementNotFound
	}
	return id, nil
}

// TakeScreenshotOptions selects what TakeScreenshot captures: the full
// document, the viewport, or a single element by reference.
type TakeScreenshotOptions struct {
	Full      bool
	ElementID string
}

// FullPage returns options requesting a full-document capture.
func FullPage() TakeScreenshotOptions { return TakeScreenshotOptions{Full: true} }

// Viewport returns options requesting the default viewport capture.
func Viewport() TakeScreenshotOptions { return TakeScreenshotOptions{Full: false} }

// Element returns options requesting a capture scoped to one element.
func Element(id string) TakeScreenshotOptions {
	return TakeScreenshotOptions{Full: false, ElementID: id}
}

// TakeScreenshot captures a screenshot and decodes the base64 PNG payload
// into raw bytes.
func (c *Client) TakeScreenshot(ctx context.Context, opts TakeScreenshotOptions) ([]byte, error) {
	params := struct {
		Full *bool   `json:"full,omitempty"`
		ID   *string `json:"id,omitempty"`
	}{}
	if opts.Full {
		full := true
		params.Full = &full
	}
	if opts.ElementID != "" {
		params.ID = &opts.ElementID
	}

	var resp struct {
		Value string `json:"value"`
	}
	if err := c.conn.Call(ctx, "WebDriver:TakeScreenshot", params, &resp); err != nil {
		return nil, fmt.Errorf("take screenshot: %w", err)
	}

	png, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScreenshotEncoding, err)
	}
	return png, nil
}

// Quit sends Marionette:Quit with a bounded timeout; it is best-effort and
// its error is informational only, per spec.md §4.D drop order.
func (c *Client) Quit(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, QuitTimeout)
	defer cancel()

	params := struct {
		Flags []string `json:"flags"`
	}{Flags: []string{"eForceQuit"}}

	if err := c.conn.Call(ctx, "Marionette:Quit", params, nil); err != nil {
		return fmt.Errorf("quit: %w", err)
	}
	return nil
}
