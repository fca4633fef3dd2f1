package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"

	"github.com/lordpython/aisoulstudio/production"
)

var excessiveBlankLines = regexp.MustCompile(`\n{4,}`)

// ValidateArticleURL rejects URLs that could reach internal services:
// non-HTTPS schemes, localhost variants, local domains, and private IPs.
func ValidateArticleURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return fmt.Errorf("localhost URLs are not allowed")
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("local domain URLs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("private IP addresses are not allowed")
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.IsLoopback() || v4.IsPrivate() || v4.IsLinkLocalUnicast()
	}
	return false
}

// ArticleImporter fetches a web article, extracts the readable content,
// and converts it to a markdown transcript a plan can be built from.
type ArticleImporter struct {
	client         *http.Client
	converter      *md.Converter
	userAgent      string
	maxContentSize int64
	logger         *slog.Logger
}

// ArticleImporterOption configures an ArticleImporter.
type ArticleImporterOption func(*ArticleImporter)

// WithArticleHTTPClient overrides the HTTP client. Tests use this to skip
// the DNS-validating transport.
func WithArticleHTTPClient(client *http.Client) ArticleImporterOption {
	return func(a *ArticleImporter) {
		a.client = client
	}
}

// WithArticleLogger sets the logger.
func WithArticleLogger(logger *slog.Logger) ArticleImporterOption {
	return func(a *ArticleImporter) {
		a.logger = logger
	}
}

// NewArticleImporter creates an importer. The default HTTP client
// re-validates resolved IPs at dial time so DNS rebinding cannot bypass
// the URL check.
func NewArticleImporter(opts ...ArticleImporterOption) *ArticleImporter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	a := &ArticleImporter{
		converter:      converter,
		userAgent:      "aisoulstudio/1.0",
		maxContentSize: 10 * 1024 * 1024,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = newSafeHTTPClient()
	}
	return a
}

func newSafeHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}
		for _, ipAddr := range ips {
			if isPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ipAddr.IP)
			}
		}
		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
		}
		return nil, fmt.Errorf("failed to connect to any resolved IP")
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:           safeDialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			if err := ValidateArticleURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
}

// Import fetches rawURL and returns its readable content as an imported
// transcript. The extracted article HTML is converted to markdown so scene
// planning can quote structure (headings, lists) from the source.
func (a *ArticleImporter) Import(ctx context.Context, rawURL string) (*production.ImportedContent, error) {
	if err := ValidateArticleURL(rawURL); err != nil {
		return nil, err
	}

	body, err := a.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	content, err := a.extract(body, rawURL)
	if err != nil {
		return nil, err
	}

	a.logger.Info("article imported",
		"url", rawURL,
		"title", content.Title,
		"chars", len(content.Transcript))
	return content, nil
}

// extract runs readability over the fetched document and converts the
// article body to markdown.
func (a *ArticleImporter) extract(body []byte, rawURL string) (*production.ImportedContent, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("extracting article: %w", err)
	}

	markdown, err := a.converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("converting article to markdown: %w", err)
	}
	markdown = strings.TrimSpace(excessiveBlankLines.ReplaceAllString(markdown, "\n\n\n"))
	if markdown == "" {
		return nil, fmt.Errorf("article has no readable content")
	}

	content := &production.ImportedContent{
		SourceKind: "article",
		SourceURL:  rawURL,
		Title:      article.Title,
		Transcript: markdown,
		Metadata: map[string]string{
			"domain": parsedURL.Hostname(),
		},
	}
	if article.SiteName != "" {
		content.Metadata["siteName"] = article.SiteName
	}
	if article.Excerpt != "" {
		content.Metadata["excerpt"] = article.Excerpt
	}
	return content, nil
}

func (a *ArticleImporter) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading article body: %w", err)
	}
	if int64(len(body)) > a.maxContentSize {
		return nil, fmt.Errorf("article too large (exceeds %d bytes)", a.maxContentSize)
	}
	return body, nil
}
