package engine

import (
	"context"
	"net/http"

	stealth "github.com/anatolykoptev/go-stealth"
)

// consentCookie skips the EU consent interstitial on watch and playlist pages.
const consentCookie = "CONSENT=YES+cb; SOCS=CAI"

// setPageHeaders dresses a page GET as desktop Chrome with an English locale,
// so scraped titles, dates and view counts come back in one predictable format.
func setPageHeaders(req *http.Request) {
	for k, v := range stealth.ChromeHeaders() {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", UserAgentChrome)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Cookie", consentCookie)
}

// retryablePageStatus reports whether a page GET should be retried.
func retryablePageStatus(code int) bool { return stealth.IsRetryableStatus(code) }

// retryPost runs an innertube POST under stealth's default retry policy.
func retryPost(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	return stealth.RetryHTTP(ctx, stealth.DefaultRetryConfig, fn)
}
