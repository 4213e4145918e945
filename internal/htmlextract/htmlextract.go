// Package htmlextract walks a fetched HTML document and produces the
// ordered, de-duplicated list of URLs it references — hyperlinks,
// framed documents, stylesheets, scripts, every image-bearing
// attribute including the long tail of lazy-load conventions, icons,
// SVG references, media, embeds, OpenGraph/Twitter/Schema.org meta
// tags, inline CSS, and recursively-walked JSON-LD structured data —
// per spec §4.6.
//
// Grounded on ternarybob-quaero/internal/services/crawler/content_processor.go
// (goquery.Document walking, meta[property^='og:']/meta[name^='twitter:']
// selectors, extractLinks) for the overall goquery traversal shape, and
// on other_examples/MathiasDPX-goarchiver__main.go's srcset-splitting
// (first whitespace-delimited token per comma segment) and the
// attribute sweep over img/script/iframe/video/audio/source/link.
package htmlextract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/sitearchiver/sitearchiver/internal/cssutil"
	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/urlutil"
)

// Found is one URL extracted from a page, along with enough provenance
// to explain why it was picked up.
type Found struct {
	URL       string
	Kind      models.Kind
	SourceTag string
	SourceAttribute string
}

// SelectorRule is one fixed (selector, attribute, kind) triple from the
// table in spec §4.6, exported so internal/htmlrewrite can walk the
// exact same coverage the extractor does (spec §4.7: "every
// selector/attribute pair covered by the extractor table").
type SelectorRule struct {
	Selector  string
	Attribute string
	Kind      models.Kind
}

// SrcsetRule pairs a selector with the srcset-shaped attribute it carries.
type SrcsetRule struct {
	Selector  string
	Attribute string
}

// SelectorTable, SrcsetSelectors, SVGRefSelectors/SVGRefAttrs and
// LazyLoadAttrs are shared with internal/htmlrewrite so both walk
// identical coverage.
var SelectorTable = []SelectorRule{
	{"a[href]", "href", models.KindPage},
	{"iframe[src]", "src", models.KindPage},
	{"frame[src]", "src", models.KindPage},

	{"link[rel=stylesheet][href]", "href", models.KindAsset},
	{"link[rel=preload][as=style][href]", "href", models.KindAsset},
	{"script[src]", "src", models.KindAsset},

	{"img[src]", "src", models.KindAsset},
	{"input[type=image][src]", "src", models.KindAsset},
	{"link[rel=preload][as=image][href]", "href", models.KindAsset},

	{"link[rel=icon][href]", "href", models.KindAsset},
	{"link[rel='shortcut icon'][href]", "href", models.KindAsset},
	{"link[rel=apple-touch-icon][href]", "href", models.KindAsset},
	{"link[rel=apple-touch-icon-precomposed][href]", "href", models.KindAsset},
	{"link[rel=mask-icon][href]", "href", models.KindAsset},
	{"link[rel=manifest][href]", "href", models.KindAsset},

	{"video[src]", "src", models.KindAsset},
	{"video[poster]", "poster", models.KindAsset},
	{"video[data-poster]", "data-poster", models.KindAsset},
	{"audio[src]", "src", models.KindAsset},
	{"video source[src]", "src", models.KindAsset},
	{"audio source[src]", "src", models.KindAsset},

	{"object[data]", "data", models.KindAsset},
	{"embed[src]", "src", models.KindAsset},
}

// SrcsetSelectors carry a comma-separated list of URL/descriptor pairs
// rather than a single URL attribute.
var SrcsetSelectors = []SrcsetRule{
	{"img[srcset]", "srcset"},
	{"picture source[srcset]", "srcset"},
	{"source[srcset]", "srcset"},
	{"link[rel=preload][as=image][imagesrcset]", "imagesrcset"},
}

// SVGRefSelectors/SVGRefAttrs need both the plain and xlink-namespaced
// attribute name checked, since goquery's underlying selector grammar
// does not accept an unescaped ':' in an attribute selector.
var SVGRefSelectors = []string{"image", "use"}
var SVGRefAttrs = []string{"href", "xlink:href"}

// LazyLoadAttrs is the long tail of framework lazy-loading conventions
// the spec calls out; each is checked on any element.
var LazyLoadAttrs = []string{
	"data-src", "data-srcset", "data-lazy-src", "data-lazy-srcset",
	"data-original", "data-lazy", "data-bg", "data-image", "data-full",
	"data-large", "data-hi-res", "data-zoom-image", "data-echo",
	"data-unveiled", "data-background", "data-background-image",
	"data-bg-src", "data-image-src", "data-thumb", "data-poster",
	"data-src-retina",
}

// MetaRules cover OpenGraph, Twitter card, and Schema.org itemprop
// image-bearing meta tags.
var MetaRules = []struct {
	Selector string
}{
	{`meta[property='og:image']`},
	{`meta[property='og:image:url']`},
	{`meta[property='og:image:secure_url']`},
	{`meta[property='og:video']`},
	{`meta[property='og:video:url']`},
	{`meta[property='og:video:secure_url']`},
	{`meta[property='og:audio']`},
	{`meta[name='twitter:image']`},
	{`meta[name='twitter:image:src']`},
	{`meta[name='twitter:player']`},
	{`meta[name='twitter:player:stream']`},
	{`meta[itemprop='image']`},
	{`meta[itemprop='thumbnailUrl']`},
	{`meta[itemprop='contentUrl']`},
}

const jsonLDMaxDepth = 32

var jsonLDImageKeys = map[string]bool{
	"image": true, "logo": true, "thumbnail": true, "thumbnailUrl": true,
	"photo": true, "primaryImageOfPage": true, "contentUrl": true,
}

// Extract parses htmlBytes (produced by fetching pageURL, possibly after
// redirects) and returns every URL the spec's selector table, srcset
// splitting, lazy-load sweep, inline-CSS mining, and JSON-LD recursion
// surface, de-duplicated by canonical URL within this call.
func Extract(htmlBytes []byte, pageURL string) ([]Found, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, fmt.Errorf("htmlextract: parse html: %w", err)
	}

	base := resolveBase(doc, pageURL)

	seen := make(map[string]bool)
	var out []Found

	add := func(raw, tag, attr string, kind models.Kind) {
		if urlutil.ShouldSkip(raw) {
			return
		}
		canonical := urlutil.Canonicalise(raw, base)
		if canonical == "" || seen[canonical] {
			return
		}
		seen[canonical] = true
		out = append(out, Found{URL: canonical, Kind: kind, SourceTag: tag, SourceAttribute: attr})
	}

	for _, rule := range SelectorTable {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(rule.Attribute); ok {
				add(v, goquery.NodeName(s), rule.Attribute, rule.Kind)
			}
		})
	}

	for _, rule := range SrcsetSelectors {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(rule.Attribute); ok {
				for _, u := range splitSrcset(v) {
					add(u, goquery.NodeName(s), rule.Attribute, models.KindAsset)
				}
			}
		})
	}

	for _, tag := range SVGRefSelectors {
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range SVGRefAttrs {
				if v, ok := s.Attr(attr); ok {
					add(v, tag, attr, models.KindAsset)
				}
			}
		})
	}

	for _, attr := range LazyLoadAttrs {
		sel := cascadia.MustCompile(fmt.Sprintf("[%s]", attr))
		doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(attr); ok {
				if strings.Contains(attr, "srcset") {
					for _, u := range splitSrcset(v) {
						add(u, goquery.NodeName(s), attr, models.KindAsset)
					}
				} else {
					add(v, goquery.NodeName(s), attr, models.KindAsset)
				}
			}
		})
	}

	for _, rule := range MetaRules {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("content"); ok {
				add(v, "meta", "content", models.KindAsset)
			}
		})
	}

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, ref := range cssutil.Extract(s.Text(), base) {
			add(ref.URL, "style", "", models.KindAsset)
		}
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("style"); ok {
			for _, ref := range cssutil.Extract(v, base) {
				add(ref.URL, goquery.NodeName(s), "style", models.KindAsset)
			}
		}
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return
		}
		for _, raw := range extractJSONLDImages(parsed, 0) {
			add(raw, "script", "ld+json", models.KindAsset)
		}
	})

	return out, nil
}

func resolveBase(doc *goquery.Document, pageURL string) *url.URL {
	pageBase, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if baseURL, err := url.Parse(href); err == nil {
			return pageBase.ResolveReference(baseURL)
		}
	}

	return pageBase
}

// splitSrcset splits a srcset attribute value on commas and takes the
// leading non-whitespace run (the URL) from each segment, discarding the
// size/density descriptor.
func splitSrcset(srcset string) []string {
	segments := strings.Split(srcset, ",")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		fields := strings.Fields(strings.TrimSpace(seg))
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// extractJSONLDImages recursively walks a parsed JSON-LD document,
// collecting string values (or the nested object's "url" field) for the
// image-bearing keys the spec names, capped at jsonLDMaxDepth to bound
// pathological or cyclic-looking documents.
func extractJSONLDImages(node any, depth int) []string {
	if depth > jsonLDMaxDepth {
		return nil
	}

	var out []string
	switch v := node.(type) {
	case map[string]any:
		for key, val := range v {
			if jsonLDImageKeys[key] {
				out = append(out, jsonLDValueStrings(val)...)
			}
			out = append(out, extractJSONLDImages(val, depth+1)...)
		}
	case []any:
		for _, item := range v {
			out = append(out, extractJSONLDImages(item, depth+1)...)
		}
	}
	return out
}

// jsonLDValueStrings handles the three shapes an image-bearing JSON-LD
// field can take: a bare string, an object with a "url" field, or an
// array of either.
func jsonLDValueStrings(val any) []string {
	switch v := val.(type) {
	case string:
		return []string{v}
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return []string{u}
		}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, jsonLDValueStrings(item)...)
		}
		return out
	}
	return nil
}
