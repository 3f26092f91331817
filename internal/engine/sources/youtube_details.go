package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

// NotAvailable is the sentinel stored for any detail the page did not yield.
const NotAvailable = "N/A"

// VideoDetails holds the scraped watch-page metadata.
type VideoDetails struct {
	Title       string
	ChannelName string
	UploadDate  string
	Duration    string // "1H 2M 30S" form
}

var (
	titleRE         = regexp.MustCompile(`"title":"([^"]+)"`)
	authorRE        = regexp.MustCompile(`"author":"([^"]+)"`)
	datePublishedRE = regexp.MustCompile(`<meta itemprop="datePublished" content="([^"]+)">`)
	durationMetaRE  = regexp.MustCompile(`<meta itemprop="duration" content="([^"]+)">`)
	viewCountRE     = regexp.MustCompile(`"viewCount":"(\d+)"`)
	isoDurationRE   = regexp.MustCompile(`^PT(\d+H)?(\d+M)?(\d+S)?$`)
)

// DetailFetcher scrapes watch pages for metadata and view counts.
type DetailFetcher struct {
	yt *YouTube
}

func NewDetailFetcher(yt *YouTube) *DetailFetcher {
	return &DetailFetcher{yt: yt}
}

// Details fetches the page at url and extracts each field independently.
// Missing fields become NotAvailable; only a failed fetch is an error.
func (d *DetailFetcher) Details(ctx context.Context, url string) (VideoDetails, error) {
	engine.IncrDetailRequests()
	markup, err := d.yt.fetch.FetchPage(ctx, url)
	if err != nil {
		return VideoDetails{}, fmt.Errorf("details: %w", err)
	}
	return ParseDetails(markup), nil
}

// ParseDetails extracts VideoDetails from watch-page markup.
func ParseDetails(markup []byte) VideoDetails {
	d := VideoDetails{
		Title:       jsonStringMatch(titleRE, markup),
		ChannelName: jsonStringMatch(authorRE, markup),
		UploadDate:  metaMatch(datePublishedRE, markup, "datePublished"),
		Duration:    FormatISODuration(metaMatch(durationMetaRE, markup, "duration")),
	}
	return d
}

// jsonStringMatch returns the first capture, decoding JSON string escapes
// such as & when they are well formed.
func jsonStringMatch(re *regexp.Regexp, markup []byte) string {
	m := re.FindSubmatch(markup)
	if len(m) < 2 {
		return NotAvailable
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+string(m[1])+`"`), &s); err == nil {
		return s
	}
	return string(m[1])
}

// metaMatch tries the exact-markup regex, then a tokenizer scan that tolerates
// attribute order and quoting differences.
func metaMatch(re *regexp.Regexp, markup []byte, itemprop string) string {
	if m := re.FindSubmatch(markup); len(m) >= 2 {
		return string(m[1])
	}
	if v, ok := scanMetaItemprop(markup, itemprop); ok {
		return v
	}
	return NotAvailable
}

func scanMetaItemprop(markup []byte, itemprop string) (string, bool) {
	z := html.NewTokenizer(bytes.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var prop, content string
			for {
				k, v, more := z.TagAttr()
				switch string(k) {
				case "itemprop":
					prop = string(v)
				case "content":
					content = string(v)
				}
				if !more {
					break
				}
			}
			if prop == itemprop && content != "" {
				return content, true
			}
		}
	}
}

// FormatISODuration turns "PT1H2M30S" into "1H 2M 30S", omitting absent
// components. NotAvailable and unparseable input yield NotAvailable.
func FormatISODuration(iso string) string {
	m := isoDurationRE.FindStringSubmatch(iso)
	if m == nil {
		return NotAvailable
	}
	var parts []string
	for _, p := range m[1:] {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return NotAvailable
	}
	return strings.Join(parts, " ")
}

// ViewCount fetches a fresh copy of the page and returns its view count. A
// page without a counter yields 0; only a failed fetch is an error.
func (d *DetailFetcher) ViewCount(ctx context.Context, url string) (int64, error) {
	markup, err := d.yt.fetch.FetchPageFresh(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("view count %s: %w", url, err)
	}
	return ParseViewCount(markup), nil
}

// ParseViewCount returns the first "viewCount" value in markup, or 0.
func ParseViewCount(markup []byte) int64 {
	m := viewCountRE.FindSubmatch(markup)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
