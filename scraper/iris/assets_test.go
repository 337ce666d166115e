package iris

import (
	"testing"
)

const assetsFixture = `<html><body>
<a href="/files/brochure.pdf">Descargar Brochure</a>
<a href="planos.pdf">Planos</a>
<a href="https://cdn.example.com/memoria-descriptiva.pdf">Memoria</a>
<a href="/files/brochure.pdf">Descargar de nuevo</a>
<a href="/nosotros">Conócenos</a>
<a href="javascript:void(0)">Abrir</a>
<img src="/img/logo-desarrollador.png" alt="">
<img src="/gallery/01.jpg" alt="Fachada">
</body></html>`

func TestCollectAssets(t *testing.T) {
	doc, err := parseSnapshot(assetsFixture)
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	pageURL := mustParseURL(t, "https://iris.example.test/proyecto/7")

	assets := collectAssets(doc, pageURL)
	if len(assets) != 5 {
		t.Fatalf("collected %d assets; want 5", len(assets))
	}

	wantOrder := []struct {
		url   string
		class string
	}{
		{"https://iris.example.test/files/brochure.pdf", "brochure"},
		{"https://iris.example.test/proyecto/planos.pdf", "floorplan"},
		{"https://cdn.example.com/memoria-descriptiva.pdf", "memoria"},
		{"https://iris.example.test/img/logo-desarrollador.png", "logo"},
		{"https://iris.example.test/gallery/01.jpg", "image"},
	}
	for i, want := range wantOrder {
		if assets[i].URL != want.url {
			t.Errorf("assets[%d].URL = %q; want %q", i, assets[i].URL, want.url)
		}
		if assets[i].Classification != want.class {
			t.Errorf("assets[%d].Classification = %q; want %q", i, assets[i].Classification, want.class)
		}
	}
	if assets[0].MimeHint != "pdf" {
		t.Errorf("brochure MimeHint = %q; want pdf", assets[0].MimeHint)
	}
	if assets[4].Label != "Fachada" {
		t.Errorf("image Label = %q; want alt text Fachada", assets[4].Label)
	}
}

func TestClassifyAsset(t *testing.T) {
	tests := []struct {
		url       string
		label     string
		isImage   bool
		wantClass string
		wantKeep  bool
	}{
		{"https://x.test/brochure.pdf", "Descargar", false, "brochure", true},
		{"https://x.test/docs/f-123.pdf", "Folleto comercial", false, "brochure", true},
		{"https://x.test/planta-tipo.png", "", false, "floorplan", true},
		{"https://x.test/memoria.docx", "", false, "memoria", true},
		{"https://x.test/logo.svg", "", false, "logo", true},
		{"https://x.test/terms.pdf", "Términos", false, "other", true},
		{"https://x.test/foto.jpg", "", true, "image", true},
		{"https://x.test/archivo.zip", "", true, "image", true},
		{"https://x.test/contacto", "Contacto", false, "", false},
		{"https://x.test/video.mp4", "Video", false, "", false},
	}
	for _, tt := range tests {
		asset, keep := classifyAsset(tt.url, tt.label, tt.isImage)
		if keep != tt.wantKeep {
			t.Errorf("classifyAsset(%q) keep = %v; want %v", tt.url, keep, tt.wantKeep)
			continue
		}
		if keep && asset.Classification != tt.wantClass {
			t.Errorf("classifyAsset(%q) class = %q; want %q", tt.url, asset.Classification, tt.wantClass)
		}
	}
}

func TestCollectAssetsCapsOutput(t *testing.T) {
	var b []byte
	b = append(b, "<html><body>"...)
	for i := 0; i < maxAssetsPerPage+20; i++ {
		b = append(b, []byte(`<img src="/g/foto-`)...)
		b = append(b, []byte{byte('a' + i%26), byte('a' + (i/26)%26)}...)
		b = append(b, []byte(`.jpg" alt="">`)...)
	}
	b = append(b, "</body></html>"...)

	doc, err := parseSnapshot(string(b))
	if err != nil {
		t.Fatalf("parseSnapshot: %v", err)
	}
	assets := collectAssets(doc, mustParseURL(t, "https://iris.example.test/proyecto/9"))
	if len(assets) != maxAssetsPerPage {
		t.Errorf("collected %d assets; want cap of %d", len(assets), maxAssetsPerPage)
	}
}
