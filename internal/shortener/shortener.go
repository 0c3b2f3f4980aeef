package shortener

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"crosspost/internal/httpclient"
)

// Citation is a permanent short link to an original post.
type Citation struct {
	Protocol  string
	Domain    string
	ShortPath string
}

// URI returns the full short link, e.g. https://s.example.com/abc.
func (c Citation) URI() string {
	return fmt.Sprintf("%s://%s/%s", c.Protocol, c.Domain, c.ShortPath)
}

// String returns the compact display form, e.g. "s.example.com abc".
func (c Citation) String() string {
	return fmt.Sprintf("%s %s", c.Domain, c.ShortPath)
}

// Client registers long URIs with the URL shortener service.
type Client struct {
	protocol   string
	domain     string
	putBaseURI string
	http       *httpclient.Client
}

func New(protocol, domain, putBaseURI string, client *httpclient.Client) *Client {
	if client == nil {
		client = httpclient.New(0)
	}
	return &Client{
		protocol:   strings.TrimSpace(protocol),
		domain:     strings.TrimSpace(domain),
		putBaseURI: strings.TrimSpace(putBaseURI),
		http:       client,
	}
}

// Put stores longURI and returns its citation. The service answers with the
// short path as a plain-text body.
func (c *Client) Put(ctx context.Context, longURI string) (Citation, error) {
	if strings.TrimSpace(longURI) == "" {
		return Citation{}, fmt.Errorf("empty uri")
	}
	resp, err := c.http.Put(ctx, c.putBaseURI, strings.NewReader(longURI), map[string]string{"Content-Type": "text/plain"})
	if err != nil {
		return Citation{}, fmt.Errorf("url shortener request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		return Citation{}, fmt.Errorf("url shortener rejected %s: %w", longURI, err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return Citation{}, fmt.Errorf("failed to read url shortener response: %w", err)
	}
	short := strings.TrimPrefix(strings.TrimSpace(string(body)), "/")
	if short == "" || (resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated) {
		return Citation{}, fmt.Errorf("url shortener returned no short path (HTTP %d)", resp.StatusCode)
	}
	return Citation{Protocol: c.protocol, Domain: c.domain, ShortPath: short}, nil
}
