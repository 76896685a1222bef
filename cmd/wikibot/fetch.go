package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/request"
	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/version"
)

const (
	// maxBodySize bounds how much of a page is read.
	maxBodySize = 5 << 20 // 5 MB
	// maxContentLen bounds how much article text is handed to the model.
	maxContentLen = 16000
)

var errNotText = errors.New("response is not a text page")

// fetchArticle retrieves the page at url and reduces it to readable article
// text, ready to be handed to the model.
func (b *bot) fetchArticle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := b.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return "", &request.StatusError{StatusCode: res.StatusCode, Body: body}
	}
	if ct := res.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || (mt != "text/html" && mt != "application/xhtml+xml" && !strings.HasPrefix(mt, "text/")) {
			return "", fmt.Errorf("%w: %s", errNotText, ct)
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return "", err
	}

	text := extractReadableText(string(body))
	if text == "" {
		return "", fmt.Errorf("%w: no readable text at %s", errNotText, url)
	}
	if len(text) > maxContentLen {
		text = text[:maxContentLen]
	}
	return text, nil
}

// extractReadableText reduces an HTML page to its article text. The page is
// first stripped of navigation, scripts and other non-content elements, then
// run through readability; pages readability can't handle fall back to
// paragraph extraction from the cleaned document.
func extractReadableText(html string) string {
	cleaned := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("script, style, noscript, nav, header, footer, aside, iframe, embed, object, video, audio, canvas, form").Remove()
		if h, err := doc.Html(); err == nil && h != "" {
			cleaned = h
		}
	}

	if article, err := readability.FromReader(strings.NewReader(cleaned), nil); err == nil {
		var buf strings.Builder
		if err := article.RenderText(&buf); err == nil {
			if text := normalizeSpace(buf.String()); text != "" {
				return text
			}
		}
	}

	return extractParagraphs(cleaned)
}

// extractParagraphs pulls text out of the usual block elements, joining them
// with blank lines. Used when readability finds no article.
func extractParagraphs(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeSpace(bluemonday.StrictPolicy().Sanitize(html))
	}

	var paragraphs []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return normalizeSpace(bluemonday.StrictPolicy().Sanitize(html))
	}
	return strings.Join(paragraphs, "\n\n")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
