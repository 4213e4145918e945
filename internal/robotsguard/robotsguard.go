// Package robotsguard wraps temoto/robotstxt into the non-blocking
// allow-predicate the Engine consults before dispatching each frontier
// entry (spec §4.10, §4.11).
//
// Grounded on other_examples/amosWeiskopf-crawlsmith__crawler.go's
// robotstxt.FromResponse + TestAgent pairing, and on
// masahif-linktadoru/internal/crawler/robots.go for the shape of a
// robots-aware crawler component (that repo hand-rolls its own parser;
// this one uses the ecosystem library instead, per the "prefer a real
// dependency over a hand-rolled equivalent" rule).
package robotsguard

import (
	"net/http"
	"time"

	"github.com/temoto/robotstxt"
)

// Guard is a fetched-once robots.txt allow-predicate for one host.
// A Guard with a nil underlying data set (fetch failed, timed out, or
// was never attempted) fails open: every path is allowed. This mirrors
// the spec's "non-blocking on failure" requirement for Engine.Start.
type Guard struct {
	userAgent string
	data      *robotstxt.RobotsData
}

// AllowAll returns a Guard that admits every path, used when
// respectRobotsTxt is false or the robots.txt fetch failed.
func AllowAll(userAgent string) *Guard {
	return &Guard{userAgent: userAgent}
}

// FetchTimeout bounds how long Engine.Start will wait on robots.txt
// before falling back to AllowAll.
const FetchTimeout = 5 * time.Second

// Fetch retrieves robotsURL (expected to be "<scheme>://<host>/robots.txt")
// with a short deadline and parses it. On any failure it returns an
// AllowAll guard rather than an error, per the spec's non-blocking
// contract — a missing or broken robots.txt must never halt a crawl.
func Fetch(client *http.Client, robotsURL, userAgent string) *Guard {
	req, err := http.NewRequest(http.MethodGet, robotsURL, nil)
	if err != nil {
		return AllowAll(userAgent)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return AllowAll(userAgent)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AllowAll(userAgent)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return AllowAll(userAgent)
	}

	return &Guard{userAgent: userAgent, data: data}
}

// Allowed reports whether path may be fetched under this guard's
// directives. A nil data set (fetch never succeeded) always allows.
func (g *Guard) Allowed(path string) bool {
	if g == nil || g.data == nil {
		return true
	}
	return g.data.TestAgent(path, g.userAgent)
}
