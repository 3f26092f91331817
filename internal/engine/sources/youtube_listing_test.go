package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

func richItem(id, title string) string {
	return fmt.Sprintf(`{"richItemRenderer":{"content":{"videoRenderer":{"videoId":%q,"title":{"runs":[{"text":%q}]}}}}}`, id, title)
}

func playlistItem(id, title string) string {
	return fmt.Sprintf(`{"playlistVideoRenderer":{"videoId":%q,"title":{"runs":[{"text":%q}]}}}`, id, title)
}

func continuationItem(token string) string {
	return fmt.Sprintf(`{"continuationItemRenderer":{"continuationEndpoint":{"continuationCommand":{"token":%q}}}}`, token)
}

func channelPage(items ...string) string {
	return `<html><script>var ytInitialData = {"contents":{"twoColumnBrowseResultsRenderer":{"tabs":[{"tabRenderer":{"selected":true,"content":{"richGridRenderer":{"contents":[` +
		strings.Join(items, ",") + `]}}}}]}}};</script></html>`
}

func browseResponse(items ...string) string {
	return `{"onResponseReceivedActions":[{"appendContinuationItemsAction":{"continuationItems":[` +
		strings.Join(items, ",") + `]}}]}`
}

func TestDiscoverWalksContinuations(t *testing.T) {
	var browseCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/@Events/videos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage(
			richItem("aaaaaaaaaaa", "AWS re:Invent 2024 - Keynote"),
			richItem("bbbbbbbbbbb", "Some other talk"),
			continuationItem("tok1"),
		))
	})
	mux.HandleFunc("/youtubei/v1/browse", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			t.Error("browse request missing key")
		}
		n := browseCalls.Add(1)
		if n == 1 {
			fmt.Fprint(w, browseResponse(
				richItem("ccccccccccc", "AWS re:Invent 2024 - Serverless"),
				richItem("aaaaaaaaaaa", "AWS re:Invent 2024 - Keynote"),
				continuationItem("tok2"),
			))
			return
		}
		fmt.Fprint(w, browseResponse(richItem("ddddddddddd", "AWS re:Invent 2024 - Storage")))
	})
	yt, srv := newTestYouTube(t, mux)

	got := NewDiscoverer(yt, 0, nil).Discover(context.Background(), ListingQuery{
		Locator:  "/@Events/videos",
		Match:    TitleContains("AWS re:Invent 2024"),
		MaxPages: 35,
	})

	wantIDs := []string{"aaaaaaaaaaa", "ccccccccccc", "ddddddddddd"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d listings (%+v), want %d", len(got), got, len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].VideoID != id {
			t.Errorf("listing %d id = %q, want %q", i, got[i].VideoID, id)
		}
		if got[i].URL != srv.URL+"/watch?v="+id {
			t.Errorf("listing %d url = %q", i, got[i].URL)
		}
	}
	if browseCalls.Load() != 2 {
		t.Errorf("browse calls = %d, want 2", browseCalls.Load())
	}
}

func TestDiscoverStopsAtPageCap(t *testing.T) {
	var browseCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/playlist", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage(playlistItem("aaaaaaaaaaa", "Talk 1"), continuationItem("tok")))
	})
	mux.HandleFunc("/youtubei/v1/browse", func(w http.ResponseWriter, r *http.Request) {
		n := browseCalls.Add(1)
		fmt.Fprint(w, browseResponse(playlistItem(fmt.Sprintf("page%07d", n), "Talk"), continuationItem("tok")))
	})
	yt, _ := newTestYouTube(t, mux)

	got := NewDiscoverer(yt, 0, nil).Discover(context.Background(), ListingQuery{
		Locator:  "/playlist?list=PL1",
		MaxPages: 3,
	})
	if browseCalls.Load() != 3 {
		t.Errorf("browse calls = %d, want 3", browseCalls.Load())
	}
	if len(got) != 4 {
		t.Errorf("got %d listings, want 4", len(got))
	}
}

func TestDiscoverNeverFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/@Events/videos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, channelPage(richItem("aaaaaaaaaaa", "AWS re:Invent 2024 - A"), continuationItem("tok")))
	})
	mux.HandleFunc("/youtubei/v1/browse", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/@Broken/videos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>no data</html>")
	})
	yt, _ := newTestYouTube(t, mux)
	d := NewDiscoverer(yt, 0, nil)

	got := d.Discover(context.Background(), ListingQuery{Locator: "/@Events/videos", MaxPages: 5})
	if len(got) != 1 {
		t.Errorf("partial result lost: got %d listings", len(got))
	}
	if got := d.Discover(context.Background(), ListingQuery{Locator: "/@Broken/videos"}); len(got) != 0 {
		t.Errorf("got %d listings from page without data", len(got))
	}
	if got := d.Discover(context.Background(), ListingQuery{Locator: "/missing"}); len(got) != 0 {
		t.Errorf("got %d listings from 404 page", len(got))
	}
}

func TestTitleContains(t *testing.T) {
	m := TitleContains("AWS re:Invent 2024")
	if !m("AWS re:Invent 2024 - Keynote") {
		t.Error("expected match")
	}
	if m("AWS re:Invent 2023 - Keynote") {
		t.Error("unexpected match")
	}
}
