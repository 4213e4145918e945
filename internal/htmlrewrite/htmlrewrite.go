// Package htmlrewrite rewrites a fetched HTML document so that every
// reference the extractor would have followed points at the local copy
// on disk instead of the live URL, per spec §4.7.
//
// Grounded on other_examples/blunext-mirrola__main.go's modifyLinks
// (walk every href/src/style attribute, resolve, rewrite in place,
// leave everything else untouched) generalized from golang.org/x/net/html
// node walking to goquery attribute rewriting so the rewriter shares its
// selector/attribute coverage directly with internal/htmlextract's
// exported tables rather than maintaining a second, parallel list.
package htmlrewrite

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/sitearchiver/sitearchiver/internal/cssutil"
	"github.com/sitearchiver/sitearchiver/internal/htmlextract"
	"github.com/sitearchiver/sitearchiver/internal/urlutil"
)

// Rewrite parses htmlBytes (fetched from pageURL) and rewrites every
// reference covered by internal/htmlextract.SelectorTable (plus srcset,
// SVG refs, lazy-load attributes, inline style/<style> blocks) whose
// canonicalised target has an entry in localPaths, replacing it with
// toRoot+localPath. pageLocalPath is the local path the page itself was
// written to, used only to compute toRoot. References with no mapping
// are left untouched.
func Rewrite(htmlBytes []byte, pageURL, pageLocalPath string, localPaths map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(htmlBytes)))
	if err != nil {
		return "", fmt.Errorf("htmlrewrite: parse html: %w", err)
	}

	base := resolveBase(doc, pageURL)
	toRoot := ToRootPrefix(pageLocalPath)

	rewriteOne := func(s *goquery.Selection, attr string) {
		v, ok := s.Attr(attr)
		if !ok {
			return
		}
		if rewritten, ok := rewriteURL(v, base, toRoot, localPaths); ok {
			s.SetAttr(attr, rewritten)
		}
	}

	for _, rule := range htmlextract.SelectorTable {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			rewriteOne(s, rule.Attribute)
		})
	}

	for _, rule := range htmlextract.SrcsetSelectors {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(rule.Attribute)
			if !ok {
				return
			}
			s.SetAttr(rule.Attribute, rewriteSrcset(v, base, toRoot, localPaths))
		})
	}

	for _, tag := range htmlextract.SVGRefSelectors {
		doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range htmlextract.SVGRefAttrs {
				rewriteOne(s, attr)
			}
		})
	}

	for _, attr := range htmlextract.LazyLoadAttrs {
		sel := cascadia.MustCompile(fmt.Sprintf("[%s]", attr))
		doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(attr)
			if !ok {
				return
			}
			if strings.Contains(attr, "srcset") {
				s.SetAttr(attr, rewriteSrcset(v, base, toRoot, localPaths))
			} else {
				rewriteOne(s, attr)
			}
		})
	}

	for _, rule := range htmlextract.MetaRules {
		doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
			rewriteOne(s, "content")
		})
	}

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		s.SetText(cssutil.Rewrite(s.Text(), base, toRoot, localPaths))
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("style"); ok {
			s.SetAttr("style", cssutil.Rewrite(v, base, toRoot, localPaths))
		}
	})

	return doc.Html()
}

// ToRootPrefix computes "../" repeated (segmentCount(pageLocalPath) - 1)
// times, or "./" at the root, per spec §4.7. Exported so the engine's
// final rewrite pass can derive the same prefix for CSS files, whose
// cssutil.Rewrite takes toRoot as an explicit argument rather than
// computing it internally.
func ToRootPrefix(pageLocalPath string) string {
	segments := strings.Count(strings.Trim(pageLocalPath, "/"), "/")
	if segments <= 0 {
		return "./"
	}
	return strings.Repeat("../", segments)
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

// rewriteURL resolves raw against base, canonicalises it, and — if a
// mapping exists in localPaths — returns toRoot+localPath. Values that
// fail to resolve, were skipped, or carry no mapping are reported as
// not-ok so the caller leaves the original attribute untouched.
func rewriteURL(raw string, base *url.URL, toRoot string, localPaths map[string]string) (string, bool) {
	if urlutil.ShouldSkip(raw) {
		return "", false
	}
	canonical := urlutil.Canonicalise(raw, base)
	if canonical == "" {
		return "", false
	}
	localPath, ok := localPaths[canonical]
	if !ok {
		return "", false
	}
	return toRoot + localPath, true
}

// rewriteSrcset splits a srcset/imagesrcset value on commas, rewrites
// each entry's URL independently while preserving its size/density
// descriptor, and rejoins the list with ", ". Entries with no mapping
// keep their original URL.
func rewriteSrcset(srcset string, base *url.URL, toRoot string, localPaths map[string]string) string {
	segments := strings.Split(srcset, ",")
	out := make([]string, 0, len(segments))

	for _, seg := range segments {
		trimmed := strings.TrimSpace(seg)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}

		rewritten, ok := rewriteURL(fields[0], base, toRoot, localPaths)
		if !ok {
			out = append(out, trimmed)
			continue
		}

		if len(fields) > 1 {
			out = append(out, rewritten+" "+strings.Join(fields[1:], " "))
		} else {
			out = append(out, rewritten)
		}
	}

	return strings.Join(out, ", ")
}
