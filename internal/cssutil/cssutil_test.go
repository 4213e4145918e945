package cssutil

import (
	"net/url"
	"testing"
)

func mustBase(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	return u
}

func TestExtractURLFunction(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `.a { background: url("images/bg.png"); } .b { background: url(images/icon.svg); }`

	refs := Extract(css, base)
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2: %+v", len(refs), refs)
	}
	for _, r := range refs {
		if r.Kind != RefURL {
			t.Errorf("expected RefURL, got %v", r.Kind)
		}
	}
}

func TestExtractImportVariants(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `@import url('reset.css'); @import "typography.css"; @import url(vendor.css);`

	refs := Extract(css, base)
	if len(refs) != 3 {
		t.Fatalf("got %d refs, want 3: %+v", len(refs), refs)
	}
	for _, r := range refs {
		if r.Kind != RefImport {
			t.Errorf("expected RefImport, got %v", r.Kind)
		}
	}
}

func TestExtractImageSetNestedURL(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `.hero { background-image: image-set(url("hero.png") 1x, url("hero@2x.png") 2x); }`

	refs := Extract(css, base)
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2: %+v", len(refs), refs)
	}
}

func TestExtractSkipsDataURIs(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `.a { background: url(data:image/png;base64,iVBORw0KGgo=); }`

	refs := Extract(css, base)
	if len(refs) != 0 {
		t.Errorf("expected data: URI to be skipped, got %+v", refs)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `.a { background: url("icon.svg"); } .b { background: url("icon.svg"); }`

	refs := Extract(css, base)
	if len(refs) != 1 {
		t.Errorf("expected duplicate url() references to collapse, got %d: %+v", len(refs), refs)
	}
}

func TestRewriteURLFunction(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `.a { background: url("icon.svg"); }`
	mapping := map[string]string{
		"https://example.com/css/icon.svg": "example.com/css/icon.svg",
	}

	got := Rewrite(css, base, "../", mapping)
	want := `.a { background: url('../example.com/css/icon.svg'); }`
	if got != want {
		t.Errorf("Rewrite = %q, want %q", got, want)
	}
}

func TestRewriteLeavesUnmappedURLsUntouched(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `.a { background: url("unmapped.svg"); }`

	got := Rewrite(css, base, "../", map[string]string{})
	if got != css {
		t.Errorf("Rewrite changed an unmapped URL: got %q", got)
	}
}

func TestRewriteImportPreservesBareStringForm(t *testing.T) {
	base := mustBase(t, "https://example.com/css/main.css")
	css := `@import "reset.css";`
	mapping := map[string]string{
		"https://example.com/css/reset.css": "example.com/css/reset.css",
	}

	got := Rewrite(css, base, "./", mapping)
	want := `@import './example.com/css/reset.css';`
	if got != want {
		t.Errorf("Rewrite = %q, want %q", got, want)
	}
}
