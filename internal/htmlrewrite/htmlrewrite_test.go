package htmlrewrite

import (
	"strings"
	"testing"
)

func TestRewriteBasicHref(t *testing.T) {
	html := `<html><body><a href="/about">About</a></body></html>`
	mapping := map[string]string{
		"https://example.com/about": "example.com/about/index.html",
	}

	got, err := Rewrite([]byte(html), "https://example.com/", "example.com/index.html", mapping)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, `href="../example.com/about/index.html"`) {
		t.Errorf("expected rewritten href, got %s", got)
	}
}

func TestRewriteComputesToRootFromDepth(t *testing.T) {
	html := `<html><body><img src="/logo.png"></body></html>`
	mapping := map[string]string{
		"https://example.com/logo.png": "example.com/logo.png",
	}

	got, err := Rewrite([]byte(html), "https://example.com/a/b/page.html", "example.com/a/b/page.html", mapping)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, `src="../../../example.com/logo.png"`) {
		t.Errorf("expected three levels of ../, got %s", got)
	}
}

func TestRewriteLeavesUnmappedUntouched(t *testing.T) {
	html := `<a href="/missing">x</a>`
	got, err := Rewrite([]byte(html), "https://example.com/", "example.com/index.html", map[string]string{})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, `href="/missing"`) {
		t.Errorf("expected unmapped href left alone, got %s", got)
	}
}

func TestRewriteSrcsetPreservesDescriptors(t *testing.T) {
	html := `<img src="/a.jpg" srcset="/a.jpg 1x, /b.jpg 2x">`
	mapping := map[string]string{
		"https://example.com/a.jpg": "example.com/a.jpg",
		"https://example.com/b.jpg": "example.com/b.jpg",
	}

	got, err := Rewrite([]byte(html), "https://example.com/", "example.com/index.html", mapping)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, `srcset="../example.com/a.jpg 1x, ../example.com/b.jpg 2x"`) {
		t.Errorf("expected rewritten srcset with descriptors preserved, got %s", got)
	}
}

func TestRewriteInlineStyleAndStyleBlock(t *testing.T) {
	html := `<head><style>.a { background: url("/bg.png"); }</style></head>
		<body><div style="background-image: url('/hero.png')"></div></body>`
	mapping := map[string]string{
		"https://example.com/bg.png":   "example.com/bg.png",
		"https://example.com/hero.png": "example.com/hero.png",
	}

	got, err := Rewrite([]byte(html), "https://example.com/", "example.com/index.html", mapping)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, "../example.com/bg.png") {
		t.Errorf("expected style block rewritten, got %s", got)
	}
	if !strings.Contains(got, "../example.com/hero.png") {
		t.Errorf("expected inline style rewritten, got %s", got)
	}
}

func TestRewriteLazyLoadAttribute(t *testing.T) {
	html := `<img data-src="/lazy.png">`
	mapping := map[string]string{
		"https://example.com/lazy.png": "example.com/lazy.png",
	}

	got, err := Rewrite([]byte(html), "https://example.com/", "example.com/index.html", mapping)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, `data-src="../example.com/lazy.png"`) {
		t.Errorf("expected lazy-load attribute rewritten, got %s", got)
	}
}

func TestRewriteDegenerateSingleSegmentPathUsesDotSlash(t *testing.T) {
	html := `<a href="/about">About</a>`
	mapping := map[string]string{
		"https://example.com/about": "about.html",
	}

	got, err := Rewrite([]byte(html), "https://example.com/", "index.html", mapping)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.Contains(got, `href="./about.html"`) {
		t.Errorf("expected ./ toRoot for a single-segment local path, got %s", got)
	}
}
