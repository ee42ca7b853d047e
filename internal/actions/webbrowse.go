package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/ports"
	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

const (
	browseTimeout      = 30 * time.Second
	maxBrowseBodyBytes = 2 * 1024 * 1024
	maxExtractedChars  = 15000
	maxExtractedLinks  = 50
)

// Browse fetches one page and extracts clean text and links. It is the only
// built-in action with browser-budget cost.
type Browse struct {
	client *http.Client
}

// NewBrowse creates the browse action with a bounded HTTP client.
func NewBrowse() *Browse {
	return &Browse{
		client: &http.Client{
			Timeout: browseTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

func (b *Browse) Definition() ports.ActionDefinition {
	return ports.ActionDefinition{
		Name:        "webbrowse.browse",
		Description: "Fetch a web page and extract its readable text and links.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":           map[string]any{"type": "string"},
				"extract_text":  map[string]any{"type": "boolean"},
				"extract_links": map[string]any{"type": "boolean"},
			},
			"required": []string{"url"},
		},
	}
}

func (b *Browse) Metadata() ports.ActionMetadata {
	return ports.ActionMetadata{
		Kind:       "webbrowse",
		Cost:       ports.CostHigh,
		SideEffect: ports.SideEffectCallsAPI,
		WritePaths: []string{
			"memory.episodic_snippets",
			"observability.browser_steps",
		},
		Idempotent: true,
		Cacheable:  true,
		CacheKey:   "browse:{url}",
	}
}

func (b *Browse) Execute(ctx context.Context, input map[string]any, st *state.AgentState) (map[string]any, error) {
	urlStr, _ := input["url"].(string)
	if urlStr == "" {
		return nil, fmt.Errorf("webbrowse: url is required")
	}
	parsed, err := neturl.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("webbrowse: invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("webbrowse: unsupported scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("webbrowse: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Tripnar-Agent/1.0 (Web Content Fetcher)")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webbrowse: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webbrowse: HTTP %d fetching %s", resp.StatusCode, urlStr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBrowseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("webbrowse: read body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("webbrowse: parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").Text())
	out := map[string]any{
		"success": true,
		"url":     resp.Request.URL.String(),
		"title":   title,
	}

	if wantBool(input, "extract_text", true) {
		out["content"] = extractText(doc)
	}
	if wantBool(input, "extract_links", false) {
		out["links"] = extractLinks(doc, resp.Request.URL)
	}
	return out, nil
}

// extractText converts the document into clean markdown-ish text, dropping
// navigation chrome.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, iframe").Remove()

	var content strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			level := int(s.Get(0).Data[1] - '0')
			content.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
		}
	})
	doc.Find("p, article, section").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); len(text) > 30 {
			content.WriteString(text + "\n\n")
		}
	})
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			content.WriteString("- " + text + "\n")
		}
	})

	result := content.String()
	if len(result) > maxExtractedChars {
		result = result[:maxExtractedChars] + "\n\n[内容已截断]"
	}
	return result
}

func extractLinks(doc *goquery.Document, base *neturl.URL) []string {
	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := neturl.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
		return len(links) < maxExtractedLinks
	})
	return links
}

func wantBool(input map[string]any, key string, fallback bool) bool {
	if v, ok := input[key].(bool); ok {
		return v
	}
	return fallback
}
