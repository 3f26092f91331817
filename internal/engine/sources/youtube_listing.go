package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

// Listing is one video discovered on a channel or playlist page.
type Listing struct {
	URL     string
	Title   string
	VideoID string
}

// ListingQuery selects what Discover walks and keeps.
type ListingQuery struct {
	Locator  string            // "/@Channel/videos" or "/playlist?list=ID"
	Match    func(string) bool // nil keeps every title
	MaxPages int               // continuation pages after the first
}

// TitleContains matches titles containing substr.
func TitleContains(substr string) func(string) bool {
	return func(title string) bool { return strings.Contains(title, substr) }
}

// Discoverer walks a channel or playlist listing and its continuation pages.
type Discoverer struct {
	yt      *YouTube
	extract InitialDataExtractor
	limiter *rate.Limiter
}

// NewDiscoverer paces page requests pageDelay apart. A nil extractor uses
// DefaultExtractor.
func NewDiscoverer(yt *YouTube, pageDelay time.Duration, extract InitialDataExtractor) *Discoverer {
	if extract == nil {
		extract = DefaultExtractor
	}
	limit := rate.Inf
	if pageDelay > 0 {
		limit = rate.Every(pageDelay)
	}
	return &Discoverer{yt: yt, extract: extract, limiter: rate.NewLimiter(limit, 1)}
}

type ytText struct {
	Runs []struct {
		Text string `json:"text"`
	} `json:"runs"`
	SimpleText string `json:"simpleText"`
}

func (t ytText) String() string {
	if len(t.Runs) > 0 {
		return t.Runs[0].Text
	}
	return t.SimpleText
}

type ytVideoRenderer struct {
	VideoID string `json:"videoId"`
	Title   ytText `json:"title"`
}

type ytListItem struct {
	RichItemRenderer *struct {
		Content struct {
			VideoRenderer *ytVideoRenderer `json:"videoRenderer"`
		} `json:"content"`
	} `json:"richItemRenderer"`
	PlaylistVideoRenderer    *ytVideoRenderer `json:"playlistVideoRenderer"`
	ContinuationItemRenderer *struct {
		ContinuationEndpoint struct {
			ContinuationCommand struct {
				Token string `json:"token"`
			} `json:"continuationCommand"`
		} `json:"continuationEndpoint"`
	} `json:"continuationItemRenderer"`
}

func (it ytListItem) video() *ytVideoRenderer {
	if it.RichItemRenderer != nil {
		return it.RichItemRenderer.Content.VideoRenderer
	}
	return it.PlaylistVideoRenderer
}

func (it ytListItem) known() bool {
	return it.RichItemRenderer != nil || it.PlaylistVideoRenderer != nil || it.ContinuationItemRenderer != nil
}

type ytBrowseResp struct {
	OnResponseReceivedActions []struct {
		AppendContinuationItemsAction struct {
			ContinuationItems []ytListItem `json:"continuationItems"`
		} `json:"appendContinuationItemsAction"`
	} `json:"onResponseReceivedActions"`
}

// Discover returns every listing whose title matches. It never fails: errors
// are logged and whatever was collected so far is returned.
func (d *Discoverer) Discover(ctx context.Context, q ListingQuery) []Listing {
	match := q.Match
	if match == nil {
		match = func(string) bool { return true }
	}
	acc := &listingAcc{match: match, seen: map[string]bool{}, yt: d.yt}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil
	}
	markup, err := d.yt.fetch.FetchPageFresh(ctx, d.yt.base+q.Locator)
	if err != nil {
		slog.Warn("listing: initial page fetch failed", slog.String("locator", q.Locator), slog.Any("error", err))
		return nil
	}
	engine.IncrListingPages()

	data, ok := d.extract.Extract(markup)
	if !ok {
		slog.Warn("listing: no embedded initial data", slog.String("locator", q.Locator))
		return nil
	}
	var items []ytListItem
	walkListItems(data, func(it ytListItem) { items = append(items, it) })
	token := acc.add(items)

	for page := 0; token != "" && page < q.MaxPages; page++ {
		if err := d.limiter.Wait(ctx); err != nil {
			slog.Info("listing: stopped", slog.Any("error", err))
			return acc.out
		}
		body, err := d.yt.postBrowse(ctx, token)
		if err != nil {
			slog.Warn("listing: continuation failed", slog.Int("page", page+1), slog.Any("error", err))
			return acc.out
		}
		engine.IncrListingPages()

		var resp ytBrowseResp
		if err := json.Unmarshal(body, &resp); err != nil {
			slog.Warn("listing: bad continuation response", slog.Int("page", page+1), slog.Any("error", err))
			return acc.out
		}
		token = ""
		if len(resp.OnResponseReceivedActions) > 0 {
			token = acc.add(resp.OnResponseReceivedActions[0].AppendContinuationItemsAction.ContinuationItems)
		}
		slog.Debug("listing: page fetched", slog.Int("page", page+1), slog.Int("found", len(acc.out)))
	}
	slog.Info("listing: done", slog.String("locator", q.Locator), slog.Int("found", len(acc.out)))
	return acc.out
}

type listingAcc struct {
	yt    *YouTube
	match func(string) bool
	seen  map[string]bool
	out   []Listing
}

// add keeps matching videos and returns the page's continuation token.
func (a *listingAcc) add(items []ytListItem) string {
	var token string
	for _, it := range items {
		if it.ContinuationItemRenderer != nil {
			token = it.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand.Token
			continue
		}
		v := it.video()
		if v == nil || v.VideoID == "" || a.seen[v.VideoID] {
			continue
		}
		title := v.Title.String()
		if !a.match(title) {
			continue
		}
		a.seen[v.VideoID] = true
		a.out = append(a.out, Listing{URL: a.yt.WatchURL(v.VideoID), Title: title, VideoID: v.VideoID})
	}
	return token
}

// walkListItems visits, in document order, every array element that is a
// listing item. Object keys are walked in sorted order so output is stable.
func walkListItems(raw json.RawMessage, visit func(ytListItem)) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return
	}
	switch raw[0] {
	case '[':
		var arr []json.RawMessage
		if json.Unmarshal(raw, &arr) != nil {
			return
		}
		for _, el := range arr {
			var it ytListItem
			if len(el) > 0 && el[0] == '{' && json.Unmarshal(el, &it) == nil && it.known() {
				visit(it)
				continue
			}
			walkListItems(el, visit)
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(raw, &obj) != nil {
			return
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			walkListItems(obj[k], visit)
		}
	}
}
