// Package pathreg implements the PathRegistry (spec §4.3 "Rewriter"):
// the bijective canonical-URL <-> local-path map every fetched resource
// is recorded in, plus the relative-path arithmetic the HTML/CSS
// rewriters need to emit working links inside the downloaded tree.
//
// Grounded on the teacher's collision-suffix file-path generation in
// internal/crawlers/static.go (sequential "_1", "_2" suffixes on path
// clashes) and its content-hash dedup in internal/models/file.go,
// generalized from "flat JS dump" to "host-rooted mirrored site tree".
package pathreg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/sitearchiver/sitearchiver/internal/urlutil"
)

const (
	maxSegmentLength  = 200
	maxCollisionTries = 1000
)

var illegalFSChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f]`)

// Registry is the PathRegistry: three synchronised structures kept
// consistent under a single mutex, per spec §3.
type Registry struct {
	mu sync.Mutex

	urlToPath map[string]string
	pathToURL map[string]string
	usedPaths map[string]bool
}

// New returns an empty, ready-to-use Registry.
func New() *Registry {
	return &Registry{
		urlToPath: make(map[string]string),
		pathToURL: make(map[string]string),
		usedPaths: make(map[string]bool),
	}
}

// Register canonicalises rawURL, returns the existing mapping if one is
// already recorded (idempotent), and otherwise derives a fresh local
// path, resolves collisions, records all three structures and returns
// it. Returns an error on malformed URLs — the registry performs no I/O.
func (r *Registry) Register(rawURL string) (string, error) {
	canonical := urlutil.Canonicalise(rawURL, nil)
	if canonical == "" {
		return "", fmt.Errorf("pathreg: malformed url %q", rawURL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.urlToPath[canonical]; ok {
		return existing, nil
	}

	candidate := derivePath(canonical)
	final := r.resolveCollision(candidate, canonical)

	r.urlToPath[canonical] = final
	r.pathToURL[final] = canonical
	r.usedPaths[final] = true

	return final, nil
}

// Lookup returns the local path already registered for rawURL, if any.
func (r *Registry) Lookup(rawURL string) (string, bool) {
	canonical := urlutil.Canonicalise(rawURL, nil)
	if canonical == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.urlToPath[canonical]
	return p, ok
}

// URLFor returns the canonical URL a stored localPath was registered
// for, the inverse of Lookup. Used by the engine's rewrite pass, which
// walks Storage by path and needs the original URL back to resolve a
// document's relative references.
func (r *Registry) URLFor(localPath string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.pathToURL[localPath]
	return u, ok
}

// Mappings returns a snapshot copy of every canonical-URL -> local-path
// pair recorded so far, the form internal/htmlrewrite and internal/cssutil
// expect for their localPaths argument.
func (r *Registry) Mappings() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.urlToPath))
	for k, v := range r.urlToPath {
		out[k] = v
	}
	return out
}

// resolveCollision appends "_1", "_2", ... to candidate's filename stem
// until a free slot is found, falling back to a content-derived hash
// suffix once maxCollisionTries is exhausted.
func (r *Registry) resolveCollision(candidate, canonical string) string {
	if !r.usedPaths[candidate] {
		return candidate
	}

	dir, base := path.Split(candidate)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i <= maxCollisionTries; i++ {
		attempt := fmt.Sprintf("%s%s_%d%s", dir, stem, i, ext)
		if !r.usedPaths[attempt] {
			return attempt
		}
	}

	hash := contentHash(canonical)
	return fmt.Sprintf("%s%s_%s%s", dir, stem, hash, ext)
}

// Relative computes the link text that should appear inside the file at
// from in order to reach the file at to, per spec §4.3: walk the common
// prefix of both paths' parent directories, emit ../ for the remaining
// from segments, then the tail of to.
func Relative(from, to string) string {
	fromDir := path.Dir(from)
	if fromDir == "." {
		fromDir = ""
	}
	fromSegs := splitNonEmpty(fromDir)
	toSegs := splitNonEmpty(to)

	common := 0
	for common < len(fromSegs) && common < len(toSegs)-1 && fromSegs[common] == toSegs[common] {
		common++
	}

	upCount := len(fromSegs) - common
	var parts []string
	for i := 0; i < upCount; i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, toSegs[common:]...)

	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

func splitNonEmpty(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// derivePath builds the candidate local path for a canonical URL
// following the LocalPath rules in spec §3.
func derivePath(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return "unknown/index.html"
	}

	segments := []string{sanitizeSegment(u.Hostname())}

	rawSegs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for _, s := range rawSegs {
		if s == "" {
			continue
		}
		segments = append(segments, sanitizeSegment(s))
	}

	isDirStyle := strings.HasSuffix(u.Path, "/") || u.Path == ""

	if isDirStyle {
		segments = append(segments, "index.html")
	} else {
		last := segments[len(segments)-1]
		if u.RawQuery != "" {
			last = foldQuery(last, u.RawQuery)
		}
		if !strings.Contains(lastDotted(last), ".") {
			last += ".html"
		}
		segments[len(segments)-1] = truncateSegment(last, canonical)
	}

	return strings.Join(segments, "/")
}

func lastDotted(segment string) string {
	// Ignore a leading dot (hidden-file style names) when deciding
	// whether the segment already carries an extension.
	return strings.TrimPrefix(segment, ".")
}

func foldQuery(filename, rawQuery string) string {
	digest := sha256.Sum256([]byte(rawQuery))
	suffix := "_" + hex.EncodeToString(digest[:])[:8]

	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	return stem + suffix + ext
}

func truncateSegment(segment, canonical string) string {
	if len(segment) <= maxSegmentLength {
		return segment
	}
	ext := path.Ext(segment)
	hash := contentHash(canonical)
	base := segment[:maxSegmentLength-len(ext)-len(hash)-1]
	return base + "_" + hash + ext
}

func sanitizeSegment(segment string) string {
	s := strings.ToLower(segment)
	s = strings.ReplaceAll(s, "..", "_")
	s = illegalFSChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, ". \t")
	if s == "" {
		s = "_"
	}
	if len(s) > maxSegmentLength {
		hash := contentHash(segment)
		ext := path.Ext(s)
		s = s[:maxSegmentLength-len(ext)-len(hash)-1] + "_" + hash + ext
	}
	return s
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
