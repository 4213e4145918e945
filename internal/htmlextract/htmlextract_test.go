package htmlextract

import (
	"testing"

	"github.com/sitearchiver/sitearchiver/internal/models"
)

func findKind(t *testing.T, found []Found, canonicalURL string) models.Kind {
	t.Helper()
	for _, f := range found {
		if f.URL == canonicalURL {
			return f.Kind
		}
	}
	t.Fatalf("expected %q among extracted urls, got %+v", canonicalURL, found)
	return ""
}

func TestExtractBasicSelectorTable(t *testing.T) {
	html := `<html><body>
		<a href="/about">About</a>
		<iframe src="/embed"></iframe>
		<link rel="stylesheet" href="/style.css">
		<script src="/app.js"></script>
		<img src="/logo.png">
	</body></html>`

	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if findKind(t, found, "https://example.com/about") != models.KindPage {
		t.Errorf("expected /about to be a page")
	}
	if findKind(t, found, "https://example.com/embed") != models.KindPage {
		t.Errorf("expected iframe src to be a page")
	}
	if findKind(t, found, "https://example.com/style.css") != models.KindAsset {
		t.Errorf("expected stylesheet to be an asset")
	}
	if findKind(t, found, "https://example.com/app.js") != models.KindAsset {
		t.Errorf("expected script to be an asset")
	}
	if findKind(t, found, "https://example.com/logo.png") != models.KindAsset {
		t.Errorf("expected img to be an asset")
	}
}

func TestExtractRespectsBaseHref(t *testing.T) {
	html := `<html><head><base href="https://cdn.example.com/assets/"></head>
		<body><img src="logo.png"></body></html>`

	found, err := Extract([]byte(html), "https://example.com/page")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findKind(t, found, "https://cdn.example.com/assets/logo.png")
}

func TestExtractSrcsetSplitsAndTakesURL(t *testing.T) {
	html := `<img srcset="/a.jpg 1x, /b.jpg 2x" src="/a.jpg">`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findKind(t, found, "https://example.com/a.jpg")
	findKind(t, found, "https://example.com/b.jpg")
}

func TestExtractLazyLoadAttributes(t *testing.T) {
	html := `<img data-src="/lazy.png" data-original="/orig.png">`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findKind(t, found, "https://example.com/lazy.png")
	findKind(t, found, "https://example.com/orig.png")
}

func TestExtractOpenGraphAndTwitterMeta(t *testing.T) {
	html := `<head>
		<meta property="og:image" content="/og.png">
		<meta name="twitter:image" content="/tw.png">
	</head>`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findKind(t, found, "https://example.com/og.png")
	findKind(t, found, "https://example.com/tw.png")
}

func TestExtractInlineStyleAndStyleBlock(t *testing.T) {
	html := `<head><style>.a { background: url("/bg.png"); }</style></head>
		<body><div style="background-image: url('/hero.png')"></div></body>`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findKind(t, found, "https://example.com/bg.png")
	findKind(t, found, "https://example.com/hero.png")
}

func TestExtractJSONLD(t *testing.T) {
	html := `<script type="application/ld+json">
		{"@type": "Product", "image": "/product.png", "brand": {"logo": {"url": "/brand-logo.png"}}}
	</script>`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	findKind(t, found, "https://example.com/product.png")
	findKind(t, found, "https://example.com/brand-logo.png")
}

func TestExtractDeduplicatesWithinCall(t *testing.T) {
	html := `<a href="/a">1</a><a href="/a">2</a>`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	count := 0
	for _, f := range found {
		if f.URL == "https://example.com/a" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected duplicate href to collapse to one entry, got %d", count)
	}
}

func TestExtractSkipsNonFetchableSchemes(t *testing.T) {
	html := `<a href="javascript:void(0)">x</a><a href="mailto:a@b.com">y</a><a href="#top">z</a>`
	found, err := Extract([]byte(html), "https://example.com/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected non-fetchable schemes to be skipped entirely, got %+v", found)
	}
}
