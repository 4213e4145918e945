package fetch

import (
	"sync/atomic"
)

// uaPool is the rotation pool of realistic browser User-Agent strings
// the Fetcher steps through on retries and 403/429 backoff, per spec
// §4.9. Grounded on the teacher's core.DefaultUserAgent (a single
// hardcoded Chrome/Windows string in internal/core/header_manager.go),
// expanded into a small rotation covering the major desktop browser/OS
// combinations a site's bot-detection would expect to see in the wild.
var uaPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// UserAgentRotator hands out the next User-Agent in uaPool each time
// Rotate is called, wrapping around; Current returns the in-use value
// without advancing it. A fixed override (set via config) always wins.
type UserAgentRotator struct {
	override string
	idx      atomic.Int64
}

// NewUserAgentRotator builds a rotator. If override is non-empty every
// call returns it instead of rotating, matching CrawlConfig.UserAgent
// taking precedence over the built-in pool.
func NewUserAgentRotator(override string) *UserAgentRotator {
	return &UserAgentRotator{override: override}
}

// Current returns the presently active User-Agent without advancing.
func (r *UserAgentRotator) Current() string {
	if r.override != "" {
		return r.override
	}
	return uaPool[int(r.idx.Load())%len(uaPool)]
}

// Rotate advances to the next pool entry and returns it. A no-op when
// an override is configured, since there is nothing to rotate through.
func (r *UserAgentRotator) Rotate() string {
	if r.override != "" {
		return r.override
	}
	next := r.idx.Add(1)
	return uaPool[int(next)%len(uaPool)]
}
