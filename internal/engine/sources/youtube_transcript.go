package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
	"github.com/anatolykoptev/go_ytledger/internal/transcript"
)

// Transcript retrieval, in order:
//  1. watch page ytInitialPlayerResponse → caption track → timedtext XML
//  2. ANDROID Innertube /player → caption track → timedtext XML
//  3. WEB /next engagement panel → /get_transcript segments

var (
	getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)
	videoIDRE       = regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	bareVideoIDRE   = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// VideoIDFromURL returns the v query parameter of a watch URL. youtu.be links
// and bare 11-char IDs are accepted too; anything else yields "".
func VideoIDFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
	}
	if m := videoIDRE.FindStringSubmatch(raw); len(m) >= 2 {
		return m[1]
	}
	if bareVideoIDRE.MatchString(raw) {
		return raw
	}
	return ""
}

// TranscriptFetcher retrieves caption segments for a video.
type TranscriptFetcher struct {
	yt    *YouTube
	langs []string
}

// NewTranscriptFetcher prefers tracks in langs, English when none are given.
func NewTranscriptFetcher(yt *YouTube, langs ...string) *TranscriptFetcher {
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return &TranscriptFetcher{yt: yt, langs: langs}
}

// Fetch returns the ordered segments for videoID, or nil when no strategy
// produced any. Failures are logged, never returned.
func (f *TranscriptFetcher) Fetch(ctx context.Context, videoID string) []transcript.Segment {
	engine.IncrTranscriptRequests()

	strategies := []struct {
		name string
		fn   func(context.Context, string) ([]transcript.Segment, error)
	}{
		{"page scrape", f.viaPageScrape},
		{"android player", f.viaPlayer},
		{"engagement panel", f.viaEngagementPanel},
	}
	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		segs, err := s.fn(ctx, videoID)
		if err == nil && len(segs) > 0 {
			return segs
		}
		if err == nil {
			err = errors.New("empty transcript")
		}
		slog.Debug("transcript: strategy failed", slog.String("id", videoID),
			slog.String("strategy", s.name), slog.Any("error", err))
	}
	engine.IncrTranscriptMisses()
	slog.Warn("transcript: not available", slog.String("id", videoID))
	return nil
}

// viaPageScrape reads caption tracks from the watch page's player response.
// The page goes through the page cache, so the detail fetch for the same
// video does not cost a second request.
func (f *TranscriptFetcher) viaPageScrape(ctx context.Context, videoID string) ([]transcript.Segment, error) {
	markup, err := f.yt.fetch.FetchPage(ctx, f.yt.WatchURL(videoID))
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	raw, ok := extractAfterMarker(markup, ytInitialPlayerResponseMarker)
	if !ok {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	var player innertubePlayerResp
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return f.fromPlayer(ctx, player)
}

// viaPlayer asks the ANDROID Innertube /player endpoint for caption tracks.
func (f *TranscriptFetcher) viaPlayer(ctx context.Context, videoID string) ([]transcript.Segment, error) {
	body, err := f.yt.postInnerTubeAndroid(ctx, "player", innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{Client: innertubeClient{
			ClientName:        "ANDROID",
			ClientVersion:     ytAndroidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}
	var player innertubePlayerResp
	if err := json.Unmarshal(body, &player); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return f.fromPlayer(ctx, player)
}

func (f *TranscriptFetcher) fromPlayer(ctx context.Context, player innertubePlayerResp) ([]transcript.Segment, error) {
	if player.Captions == nil {
		if player.PlayabilityStatus != nil && player.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("captions unavailable: %s", player.PlayabilityStatus.Reason)
		}
		return nil, errors.New("no captions in player response")
	}
	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, errors.New("no caption tracks")
	}
	track, ok := pickBestTrack(tracks, f.langs)
	if !ok {
		return nil, errors.New("all caption tracks require PoToken")
	}
	return f.fetchTimedText(ctx, track.BaseURL)
}

// viaEngagementPanel fetches a transcript via /next then /get_transcript.
// This works from datacenter IPs where /player returns LOGIN_REQUIRED.
func (f *TranscriptFetcher) viaEngagementPanel(ctx context.Context, videoID string) ([]transcript.Segment, error) {
	visitorData := generateVisitorData()

	nextData, err := f.yt.postInnerTubeWEB(ctx, "next", map[string]any{
		"videoId": videoID,
		"context": map[string]any{
			"client":  ytWebClient(visitorData),
			"user":    map[string]bool{"enableSafetyMode": false},
			"request": map[string]bool{"useSsl": true},
		},
	}, visitorData)
	if err != nil {
		return nil, fmt.Errorf("/next: %w", err)
	}
	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return nil, err
	}

	data, err := f.yt.postInnerTubeWEB(ctx, "get_transcript", map[string]any{
		"params":  token,
		"context": map[string]any{"client": ytWebClient(visitorData)},
	}, visitorData)
	if err != nil {
		return nil, fmt.Errorf("/get_transcript: %w", err)
	}
	var resp ytGetTranscriptResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return parseTranscriptSegments(resp), nil
}

func extractTranscriptToken(data []byte) (string, error) {
	m := getTranscriptRE.FindSubmatch(data)
	if len(m) < 2 {
		return "", errors.New("getTranscriptEndpoint not found in engagement panels")
	}
	// /next returns the params URL-encoded; /get_transcript wants them raw.
	if decoded, err := url.QueryUnescape(string(m[1])); err == nil {
		return decoded, nil
	}
	return string(m[1]), nil
}

func parseTranscriptSegments(resp ytGetTranscriptResp) []transcript.Segment {
	var segs []transcript.Segment
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		initial := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, seg := range initial {
			r := seg.TranscriptSegmentRenderer
			if r == nil {
				continue
			}
			var parts []string
			for _, run := range r.Snippet.Runs {
				if run.Text != "" {
					parts = append(parts, run.Text)
				}
			}
			if len(parts) == 0 {
				continue
			}
			start := msToSeconds(r.StartMs)
			segs = append(segs, transcript.Segment{
				Start:    start,
				Duration: max(msToSeconds(r.EndMs)-start, 0),
				Text:     strings.Join(parts, ""),
			})
		}
	}
	return segs
}

func msToSeconds(ms string) float64 {
	n, err := strconv.ParseFloat(ms, 64)
	if err != nil {
		return 0
	}
	return n / 1000
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the given language preferences.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	// Manual track in a preferred language, then auto-generated, then any English.
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// ytTimedText covers both the legacy <text start dur> format and format 3
// (<body><p t d> in milliseconds).
type ytTimedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
	Body struct {
		Ps []struct {
			T     string `xml:"t,attr"`
			D     string `xml:"d,attr"`
			Inner string `xml:",innerxml"`
		} `xml:"p"`
	} `xml:"body"`
}

func (f *TranscriptFetcher) fetchTimedText(ctx context.Context, baseURL string) ([]transcript.Segment, error) {
	body, err := f.yt.fetch.FetchPageFresh(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) ([]transcript.Segment, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}
	var segs []transcript.Segment
	for _, t := range tt.Texts {
		text := engine.CleanHTML(t.Text)
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(t.Start, 64)
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		segs = append(segs, transcript.Segment{Start: start, Duration: dur, Text: text})
	}
	for _, p := range tt.Body.Ps {
		text := engine.CleanHTML(p.Inner)
		if text == "" {
			continue
		}
		segs = append(segs, transcript.Segment{Start: msToSeconds(p.T), Duration: msToSeconds(p.D), Text: text})
	}
	return segs, nil
}
