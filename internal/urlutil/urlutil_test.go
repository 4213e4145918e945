package urlutil

import (
	"net/url"
	"testing"

	"github.com/sitearchiver/sitearchiver/internal/models"
)

func TestCanonicalise(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase host", "HTTP://Example.COM/Path", "http://example.com/Path"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"keeps non-default port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"strips fragment", "https://example.com/a#section", "https://example.com/a"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"root path untouched", "https://example.com/", "https://example.com/"},
		{"sorts query params", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"rejects non-http scheme", "ftp://example.com/a", ""},
		{"rejects unparsable", "http://[::1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Canonicalise(tt.in, nil)
			if got != tt.want {
				t.Errorf("Canonicalise(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicaliseWithBase(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/page.html")
	got := Canonicalise("../other.html", base)
	want := "https://example.com/other.html"
	if got != want {
		t.Errorf("Canonicalise relative = %q, want %q", got, want)
	}
}

func TestInScope(t *testing.T) {
	const seed = "https://www.example.com/"

	tests := []struct {
		name      string
		candidate string
		scope     models.Scope
		custom    []string
		want      bool
	}{
		{"same-host match", "https://www.example.com/a", models.ScopeSameHost, nil, true},
		{"same-host mismatch subdomain", "https://blog.example.com/a", models.ScopeSameHost, nil, false},
		{"same-domain subdomain", "https://blog.example.com/a", models.ScopeSameDomain, nil, true},
		{"same-domain other domain", "https://example.org/a", models.ScopeSameDomain, nil, false},
		{"subdomains admits apex", "https://example.com/a", models.ScopeSubdomains, nil, true},
		{"subdomains admits subdomain", "https://cdn.example.com/a", models.ScopeSubdomains, nil, true},
		{"subdomains rejects other domain", "https://evil.com/a", models.ScopeSubdomains, nil, false},
		{"custom allow-list match", "https://cdn.other.com/a", models.ScopeCustom, []string{"other.com"}, true},
		{"custom allow-list miss", "https://cdn.notlisted.com/a", models.ScopeCustom, []string{"other.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InScope(tt.candidate, seed, tt.scope, tt.custom)
			if got != tt.want {
				t.Errorf("InScope(%q, scope=%v) = %v, want %v", tt.candidate, tt.scope, got, tt.want)
			}
		})
	}
}

func TestInScopeSecondLevelSuffix(t *testing.T) {
	got := InScope("https://shop.example.co.uk/a", "https://www.example.co.uk/", models.ScopeSameDomain, nil)
	if !got {
		t.Errorf("expected example.co.uk subdomains to share a registrable domain")
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		url, glob string
		want      bool
	}{
		{"https://example.com/blog/post-1", "*/blog/*", true},
		{"https://example.com/shop/item-1", "*/blog/*", false},
		{"https://example.com/a.html", "*.html", true},
		{"https://EXAMPLE.com/A.HTML", "*.html", true},
		{"https://example.com/a.htm", "*.ht?", true},
	}

	for _, tt := range tests {
		got := MatchesPattern(tt.url, tt.glob)
		if got != tt.want {
			t.Errorf("MatchesPattern(%q, %q) = %v, want %v", tt.url, tt.glob, got, tt.want)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := []struct{ url, want string }{
		{"https://example.com/a/b.HTML", "html"},
		{"https://example.com/a/b", ""},
		{"https://example.com/a.b/c", ""},
		{"https://example.com/", ""},
		{"https://example.com/archive.tar.gz", "gz"},
	}
	for _, tt := range tests {
		if got := Extension(tt.url); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestMimeCategory(t *testing.T) {
	tests := []struct {
		ext  string
		want models.FileType
	}{
		{"html", models.FileTypeHTML},
		{"css", models.FileTypeCSS},
		{"js", models.FileTypeJS},
		{"png", models.FileTypeImages},
		{"woff2", models.FileTypeFonts},
		{"mp4", models.FileTypeMedia},
		{"pdf", models.FileTypeDocuments},
		{"xyz", models.FileTypeOther},
		{"", models.FileTypeOther},
	}
	for _, tt := range tests {
		if got := MimeCategory(tt.ext); got != tt.want {
			t.Errorf("MimeCategory(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"#top", true},
		{"data:image/png;base64,abc", true},
		{"javascript:void(0)", true},
		{"mailto:a@b.com", true},
		{"tel:+1234567890", true},
		{"https://example.com/a", false},
	}
	for _, tt := range tests {
		if got := ShouldSkip(tt.url); got != tt.want {
			t.Errorf("ShouldSkip(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
