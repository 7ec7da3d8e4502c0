// Package translate sends MDX documents to an OpenAI-compatible
// chat/completions endpoint and post-processes the replies.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.trai.ch/zerr"

	"github.com/minios-linux/mdxlate/langmeta"
	"github.com/minios-linux/mdxlate/mdx"
)

const (
	// Temperature is the sampling temperature of every request.
	Temperature = 0.1
	// MaxTokens caps the length of a completion.
	MaxTokens = 16384
)

// ErrRequestFailed is returned when the endpoint cannot be reached.
var ErrRequestFailed = zerr.New("API request failed")

// APIError is returned when the endpoint answers with a non-success status
// or with a body that is not JSON.
type APIError struct {
	StatusCode int
	// Body is the response body, truncated to 500 bytes.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Provider holds the configuration of the translation endpoint.
type Provider struct {
	// BaseURL is the API base URL; /chat/completions is appended.
	BaseURL string
	// APIKey is sent as a bearer token.
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout (0 = none).
	Timeout time.Duration
}

// Options controls post-processing and logging of a Client.
type Options struct {
	// SourceLang is the language code used in links of the source tree.
	SourceLang string
	// LinkHosts restricts absolute-link rewriting to these hosts.
	LinkHosts []string
	// OnLog emits log messages.
	OnLog func(format string, args ...any)
	// Verbose enables request tracing.
	Verbose bool
}

// Client translates documents through one Provider.
type Client struct {
	prov Provider
	opts Options
	http *http.Client
}

// NewClient returns a Client for prov.
func NewClient(prov Provider, opts Options) *Client {
	return &Client{
		prov: prov,
		opts: opts,
		http: makeHTTPClient(prov.Proxy, prov.Timeout),
	}
}

func (c *Client) log(format string, args ...any) {
	if c.opts.OnLog != nil {
		c.opts.OnLog(format, args...)
	}
}

// Translate translates text into lang. The reply is unwrapped from a
// surrounding code fence and its links are moved to the target language.
// An unexpected response shape yields "" and no error.
func (c *Client) Translate(ctx context.Context, text string, lang langmeta.Meta) (string, error) {
	reply, err := c.complete(ctx, BuildPrompt(text, lang))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		c.log("Empty completion for %s", lang.Code)
		return "", nil
	}
	reply = mdx.Unwrap(reply, text)
	return RewriteLinks(reply, c.opts.SourceLang, lang.Code, c.opts.LinkHosts), nil
}

// Endpoint returns the chat/completions URL of the provider.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.prov.BaseURL, "/") + "/chat/completions"
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := buildChatRequest(c.prov.Model, prompt)
	if err != nil {
		return "", zerr.Wrap(err, "building request")
	}

	endpoint := c.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", zerr.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.prov.APIKey)

	if c.opts.Verbose {
		log.Printf("[DEBUG] POST %s (model %s, %d bytes)", endpoint, c.prov.Model, len(body))
	}
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", zerr.With(fmt.Errorf("%w: %w", ErrRequestFailed, err), "endpoint", endpoint)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", zerr.With(fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err), "endpoint", endpoint)
	}

	if c.opts.Verbose {
		log.Printf("[DEBUG] %s answered %d in %v", endpoint, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}
	text, ok := extractResponseText(respBody)
	if !ok {
		return "", &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}
	return text, nil
}

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// An explicit proxy wins over HTTP_PROXY/HTTPS_PROXY.
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func buildChatRequest(model, prompt string) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
	}{
		Model:       model,
		Messages:    []msg{{Role: "user", Content: prompt}},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	}
	return json.Marshal(req)
}

// extractResponseText returns choices[0].message.content. ok is false only
// when body is not JSON; any other shape yields "".
func extractResponseText(body []byte) (text string, ok bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", false
	}
	choices, _ := raw["choices"].([]any)
	if len(choices) == 0 {
		return "", true
	}
	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)
	content, _ := message["content"].(string)
	return content, true
}

// truncate truncates a string to at most maxLen bytes without splitting a
// UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
