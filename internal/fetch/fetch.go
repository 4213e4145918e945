package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/net/publicsuffix"

	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/ssrfguard"
	"github.com/sitearchiver/sitearchiver/internal/urlutil"
)

const maxRetryAttempts = 5

// redirectStatuses are the 3xx codes the Fetcher follows manually, per
// spec §4.9.
var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// botInterstitialPhrases are substrings that indicate a challenge page
// rather than real content, per spec §4.9.
var botInterstitialPhrases = []string{
	"cf-browser-verification",
	"checking your browser",
	"ddos-guard",
	"please wait while we verify",
	"just a moment",
	"access denied",
}

// Result is a successful fetch, per spec §4.9.
type Result struct {
	OriginalURL   string
	FinalURL      string
	StatusCode    int
	Headers       http.Header
	ContentType   string
	Body          []byte
	RedirectChain []string
}

// Error is a failed fetch: either retryable (the caller may re-enqueue)
// or terminal.
type Error struct {
	Code      models.ErrorCode
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fetcher is the bounded-concurrency, anti-detection HTTP client
// described in spec §4.9.
//
// Grounded on the teacher's internal/crawlers/page_pool.go for the
// bounded-pool/backoff shape (generalized from a rod browser-tab pool
// to an HTTP-request pool) and masahif-linktadoru/internal/crawler/
// http_client.go for the manual http.Client construction (transport
// tuning, CheckRedirect override). The per-request pacing delay and
// the 429/503 Retry-After cooldown are two distinct per-host
// mechanisms: ratelimiter.go's hostPacer (a jittered per-host interval,
// map shape grounded on rate_limiter.go) paces routine requests, while
// hostUntil below tracks the literal server-specified retry timestamp.
type Fetcher struct {
	cfg          models.CrawlConfig
	client       *http.Client
	ua           *UserAgentRotator
	headers      models.HeaderProvider
	resourceMon  *ResourceMonitor
	pool         *pool.Pool
	pacer        *hostPacer

	// validate runs the SSRF guard; it is ssrfguard.Validate in
	// production and overridden in tests so an httptest.Server's
	// loopback address (otherwise unconditionally blocked) can stand
	// in for a real remote host.
	validate func(rawURL string, allowedProtocols []string) ssrfguard.Verdict

	hostMu    sync.Mutex
	hostUntil map[string]time.Time

	inFlight atomic.Int64
	aborted  atomic.Bool

	pauseMu   sync.Mutex
	paused    bool
	resumeGate chan struct{}
}

// New builds a Fetcher from cfg. headers may be nil, in which case no
// extra headers are merged beyond the Fetcher's own anti-detection set.
func New(cfg models.CrawlConfig, headers models.HeaderProvider) (*Fetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("fetch: build cookie jar: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resumeGate := make(chan struct{})
	close(resumeGate)

	f := &Fetcher{
		cfg:         cfg,
		client:      client,
		ua:          NewUserAgentRotator(cfg.UserAgent),
		headers:     headers,
		resourceMon: NewResourceMonitor(cfg.Concurrency),
		hostUntil:   make(map[string]time.Time),
		resumeGate:  resumeGate,
		validate:    ssrfguard.Validate,
		pacer:       newHostPacer(cfg.DelayMs),
	}
	f.pool = pool.New().WithMaxGoroutines(maxInt(cfg.Concurrency, 1))

	if len(cfg.Cookies) > 0 {
		if seed, err := url.Parse(cfg.SeedURL); err == nil {
			var cookies []*http.Cookie
			for name, value := range cfg.Cookies {
				cookies = append(cookies, &http.Cookie{Name: name, Value: value})
			}
			jar.SetCookies(seed, cookies)
		}
	}

	return f, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// OverrideSSRFValidator replaces the SSRF guard Fetch consults before
// every request and redirect. Production code never calls this; it is
// the same test seam fetch_test.go uses internally, exported so other
// packages' tests (internal/engine, internal/job) can exercise a
// Fetcher against an httptest.Server, whose loopback address the real
// guard rejects unconditionally.
func (f *Fetcher) OverrideSSRFValidator(fn func(rawURL string, allowedProtocols []string) ssrfguard.Verdict) {
	f.validate = fn
}

// UserAgent returns the User-Agent string currently in effect, for
// callers (the engine's robots.txt fetch) that need to present the same
// identity the Fetcher itself uses.
func (f *Fetcher) UserAgent() string {
	return f.ua.Current()
}

// Abort makes every pending and future Fetch call return a non-retryable
// Error{Code: ErrAborted} without performing any network I/O.
func (f *Fetcher) Abort() {
	f.aborted.Store(true)
}

// Pause holds every pool task that has not yet started its request, and
// every future Fetch call, until Resume is called. A request already
// under way is not interrupted.
func (f *Fetcher) Pause() {
	f.pauseMu.Lock()
	defer f.pauseMu.Unlock()
	if f.paused {
		return
	}
	f.paused = true
	f.resumeGate = make(chan struct{})
}

// Resume releases anything blocked by a prior Pause.
func (f *Fetcher) Resume() {
	f.pauseMu.Lock()
	defer f.pauseMu.Unlock()
	if !f.paused {
		return
	}
	f.paused = false
	close(f.resumeGate)
}

func (f *Fetcher) waitIfPaused(ctx context.Context) error {
	f.pauseMu.Lock()
	gate := f.resumeGate
	f.pauseMu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until no fetch is pending or in-flight in the pool.
func (f *Fetcher) Drain() {
	f.pool.Wait()
	f.pool = pool.New().WithMaxGoroutines(maxInt(f.cfg.Concurrency, 1))
}

// Fetch performs the spec §4.9 fetch algorithm for rawURL, using
// referer as the Referer header (falling back to the seed URL when
// empty).
func (f *Fetcher) Fetch(ctx context.Context, rawURL, referer string) (*Result, *Error) {
	if f.aborted.Load() {
		return nil, &Error{Code: models.ErrAborted, Message: "fetcher aborted", Retryable: false}
	}

	host, err := hostOf(rawURL)
	if err != nil {
		return nil, &Error{Code: models.ErrUnknown, Message: err.Error(), Retryable: false}
	}

	if until, ok := f.hostRateLimitUntil(host); ok {
		if wait := time.Until(until); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &Error{Code: models.ErrTimeout, Message: "context cancelled waiting for rate limit", Retryable: true}
			}
		}
	}

	if err := f.pacer.Wait(ctx, host); err != nil {
		return nil, &Error{Code: models.ErrTimeout, Message: err.Error(), Retryable: true}
	}

	if err := f.waitForResourceHeadroom(ctx); err != nil {
		return nil, &Error{Code: models.ErrTimeout, Message: err.Error(), Retryable: true}
	}

	type outcome struct {
		res *Result
		err *Error
	}
	ch := make(chan outcome, 1)

	f.inFlight.Add(1)
	f.pool.Go(func() {
		defer f.inFlight.Add(-1)
		if werr := f.waitIfPaused(ctx); werr != nil {
			ch <- outcome{nil, &Error{Code: models.ErrTimeout, Message: werr.Error(), Retryable: true}}
			return
		}
		if f.aborted.Load() {
			ch <- outcome{nil, &Error{Code: models.ErrAborted, Message: "fetcher aborted", Retryable: false}}
			return
		}
		res, err := f.doFetch(ctx, rawURL, referer)
		ch <- outcome{res, err}
	})

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return nil, &Error{Code: models.ErrTimeout, Message: ctx.Err().Error(), Retryable: true}
	}
}

// waitForResourceHeadroom polls until the in-flight request count drops
// below the ResourceMonitor's current ceiling, so the Fetcher degrades
// its effective concurrency under memory pressure instead of holding
// the pool open at its full configured size.
func (f *Fetcher) waitForResourceHeadroom(ctx context.Context) error {
	for {
		if f.inFlight.Load() < int64(f.resourceMon.MaxConcurrency()) {
			return nil
		}
		select {
		case <-time.After(25 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return u.Hostname(), nil
}

func (f *Fetcher) hostRateLimitUntil(host string) (time.Time, bool) {
	f.hostMu.Lock()
	defer f.hostMu.Unlock()
	t, ok := f.hostUntil[host]
	return t, ok
}

func (f *Fetcher) setHostRateLimitUntil(host string, until time.Time) {
	f.hostMu.Lock()
	defer f.hostMu.Unlock()
	f.hostUntil[host] = until
}

func backoffJittered(attempt int) time.Duration {
	base := float64(uint(1)<<uint(attempt)) * 1000
	jitter := 0.5 + rand.Float64()
	return time.Duration(base*jitter) * time.Millisecond
}

// doFetch runs inside the pool: SSRF guard, header construction, manual
// redirect following with the 429/403/503/network retry policies, and
// body-size enforcement.
func (f *Fetcher) doFetch(ctx context.Context, rawURL, referer string) (*Result, *Error) {
	currentURL := rawURL
	redirectChain := []string{}
	effectiveReferer := referer
	if effectiveReferer == "" {
		effectiveReferer = f.cfg.SeedURL
	}

	for attempt := 1; ; {
		if verdict := f.validate(currentURL, f.cfg.AllowedProtocols); !verdict.Safe {
			return nil, &Error{Code: models.ErrSSRF, Message: verdict.Reason, Retryable: false}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			return nil, &Error{Code: models.ErrUnknown, Message: err.Error(), Retryable: false}
		}
		if err := f.buildHeaders(req, currentURL, effectiveReferer); err != nil {
			return nil, &Error{Code: models.ErrUnknown, Message: err.Error(), Retryable: false}
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if attempt >= maxRetryAttempts {
				return nil, &Error{Code: models.ErrNetwork, Message: err.Error(), Retryable: false}
			}
			attempt++
			f.ua.Rotate()
			if serr := sleepCtx(ctx, backoffJittered(attempt)); serr != nil {
				return nil, &Error{Code: models.ErrTimeout, Message: serr.Error(), Retryable: true}
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if attempt >= maxRetryAttempts {
				return nil, &Error{Code: models.ErrRateLimited, Message: "rate limited after max attempts", Retryable: false}
			}
			wait := retryAfter(resp.Header, 5*time.Second)
			host, _ := hostOf(currentURL)
			f.setHostRateLimitUntil(host, time.Now().Add(wait))
			attempt++
			f.ua.Rotate()
			if serr := sleepCtx(ctx, wait); serr != nil {
				return nil, &Error{Code: models.ErrTimeout, Message: serr.Error(), Retryable: true}
			}
			continue

		case resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			if attempt >= maxRetryAttempts {
				return nil, &Error{Code: models.ErrForbidden, Message: "forbidden after max attempts", Retryable: false}
			}
			attempt++
			f.ua.Rotate()
			if serr := sleepCtx(ctx, backoffJittered(attempt)); serr != nil {
				return nil, &Error{Code: models.ErrTimeout, Message: serr.Error(), Retryable: true}
			}
			continue

		case resp.StatusCode == http.StatusServiceUnavailable:
			resp.Body.Close()
			if attempt >= maxRetryAttempts {
				return nil, &Error{Code: models.ErrServiceUnavailable, Message: "service unavailable after max attempts", Retryable: false}
			}
			wait := retryAfter(resp.Header, 5*time.Second)
			attempt++
			if serr := sleepCtx(ctx, wait); serr != nil {
				return nil, &Error{Code: models.ErrTimeout, Message: serr.Error(), Retryable: true}
			}
			continue

		case redirectStatuses[resp.StatusCode]:
			resp.Body.Close()
			if !f.cfg.FollowRedirects {
				return f.readSuccess(resp, rawURL, currentURL, redirectChain)
			}
			loc := resp.Header.Get("Location")
			next, err := resolveRedirect(currentURL, loc)
			if err != nil {
				return nil, &Error{Code: models.ErrUnknown, Message: err.Error(), Retryable: false}
			}
			redirectChain = append(redirectChain, next)
			if len(redirectChain) > f.cfg.MaxRedirects {
				return nil, &Error{Code: models.ErrUnknown, Message: "too many redirects", Retryable: false}
			}
			effectiveReferer = currentURL
			currentURL = next
			continue
		}

		body, sizeErr := f.readBodyWithCeiling(resp)
		if sizeErr != nil {
			resp.Body.Close()
			return nil, sizeErr
		}
		resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if resp.StatusCode == http.StatusOK && strings.Contains(contentType, "text/html") && isBotInterstitial(body) {
			if attempt >= maxRetryAttempts {
				return &Result{
					OriginalURL: rawURL, FinalURL: currentURL, StatusCode: resp.StatusCode,
					Headers: resp.Header, ContentType: contentType, Body: body, RedirectChain: redirectChain,
				}, nil
			}
			attempt++
			f.ua.Rotate()
			if serr := sleepCtx(ctx, backoffJittered(attempt)); serr != nil {
				return nil, &Error{Code: models.ErrTimeout, Message: serr.Error(), Retryable: true}
			}
			continue
		}

		return &Result{
			OriginalURL:   rawURL,
			FinalURL:      currentURL,
			StatusCode:    resp.StatusCode,
			Headers:       resp.Header,
			ContentType:   contentType,
			Body:          body,
			RedirectChain: redirectChain,
		}, nil
	}
}

func (f *Fetcher) readSuccess(resp *http.Response, originalURL, finalURL string, redirectChain []string) (*Result, *Error) {
	return &Result{
		OriginalURL:   originalURL,
		FinalURL:      finalURL,
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		ContentType:   resp.Header.Get("Content-Type"),
		RedirectChain: redirectChain,
	}, nil
}

// readBodyWithCeiling enforces spec §4.9 steps e/f: reject on declared
// Content-Length overflow before reading, and cancel mid-stream if the
// actual body exceeds MaxFileSize. Because buildHeaders sets
// Accept-Encoding explicitly, the net/http Transport leaves the response
// body exactly as the server sent it (its own transparent gzip handling
// only kicks in when the caller does not set that header) — so the
// decoded bytes stored here must be decompressed against the response's
// actual Content-Encoding, not assumed to already be plain text.
func (f *Fetcher) readBodyWithCeiling(resp *http.Response) ([]byte, *Error) {
	maxSize := f.cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 20 * 1024 * 1024
	}

	if resp.ContentLength > 0 && resp.ContentLength > maxSize {
		return nil, &Error{Code: models.ErrTooLarge, Message: "declared content-length exceeds max file size", Retryable: false}
	}

	reader, closer, err := decompressingReader(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, &Error{Code: models.ErrNetwork, Message: fmt.Sprintf("decompress response: %v", err), Retryable: false}
	}
	if closer != nil {
		defer closer.Close()
	}

	limited := io.LimitReader(reader, maxSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &Error{Code: models.ErrNetwork, Message: err.Error(), Retryable: false}
	}
	if int64(len(body)) > maxSize {
		return nil, &Error{Code: models.ErrTooLarge, Message: "body exceeded max file size mid-stream", Retryable: false}
	}
	return body, nil
}

// decompressingReader wraps body per the response's Content-Encoding so
// the fetcher always stores and classifies plain bytes, regardless of
// which encoding a server chose from the Accept-Encoding offered in
// buildHeaders. The returned io.Closer is non-nil only when the wrapping
// reader itself needs closing (gzip); the caller still closes resp.Body
// separately.
func decompressingReader(encoding string, body io.Reader) (io.Reader, io.Closer, error) {
	switch strings.TrimSpace(strings.ToLower(encoding)) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr, nil
	case "deflate":
		fr := flate.NewReader(body)
		return fr, fr, nil
	case "br":
		return brotli.NewReader(body), nil, nil
	default:
		return body, nil, nil
	}
}

func isBotInterstitial(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, phrase := range botInterstitialPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func resolveRedirect(currentURL, location string) (string, error) {
	base, err := url.Parse(currentURL)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}

// retryAfter parses a Retry-After header (seconds or HTTP-date), falling
// back to def when absent or unparseable.
func retryAfter(h http.Header, def time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// buildHeaders assembles the anti-detection header set for currentURL,
// per spec §4.9 step 4b: UA, Accept tuned by extension, Accept-Language,
// Accept-Encoding, keep-alive, client-hint/Sec-Fetch-* headers, DNT,
// Referer, cookies via the jar, and any caller-supplied extras merged
// last.
func (f *Fetcher) buildHeaders(req *http.Request, currentURL, referer string) error {
	req.Header.Set("User-Agent", f.ua.Current())
	req.Header.Set("Accept", acceptForURL(currentURL))
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	req.Header.Set("DNT", "1")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	if f.headers != nil {
		extra, err := f.headers.GetHeaders()
		if err != nil {
			return err
		}
		for name, values := range extra {
			for _, v := range values {
				req.Header.Set(name, v)
			}
		}
	}

	return nil
}

// acceptForURL selects an Accept header by the URL's file extension,
// per spec §4.9's "Accept chosen by extension (HTML/CSS/JS/image/font/
// default)".
func acceptForURL(rawURL string) string {
	switch urlutil.MimeCategory(urlutil.Extension(rawURL)) {
	case models.FileTypeCSS:
		return "text/css,*/*;q=0.1"
	case models.FileTypeJS:
		return "*/*"
	case models.FileTypeImages:
		return "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
	case models.FileTypeFonts:
		return "font/woff2,font/woff,*/*;q=0.1"
	case models.FileTypeHTML:
		return "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	default:
		return "*/*"
	}
}
