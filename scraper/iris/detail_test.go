package iris

import (
	"context"
	"strings"
	"testing"
	"time"

	"iris-scraper/models"
)

const detailPageFixture = `<html><body>
<h1>Torre del Mar</h1>
<div class="project-description">
	Torre del Mar es un desarrollo de categoría sobre la rambla de Pocitos,
	con amenities completos y entrega prevista para diciembre de 2026.
</div>
<div><strong>Zona:</strong> Pocitos</div>
<a href="/files/brochure.pdf">Descargar Brochure</a>
<a href="/files/planos.pdf">Planos</a>
<div class="unidades">
<table>
<thead><tr><th>Tipología</th><th>M² Totales</th><th>Precio Desde</th></tr></thead>
<tbody>
<tr><td>1 dormitorio</td><td>45</td><td>U$S 120.000</td></tr>
<tr><td>2 dormitorios</td><td>68</td><td>U$S 178.000</td></tr>
</tbody>
</table>
</div>
<button>Más Información</button>
</body></html>`

const issuerModalFixture = `<div class="ant-modal-content">
	<h3>Altos del Puerto SA</h3>
	<a href="mailto:ventas@altosdelpuerto.uy">Escribinos</a>
</div>`

func catalogRecord(key, ref string) *models.CatalogRecord {
	return &models.CatalogRecord{
		IdentityKey: key,
		DisplayName: key,
		DetailRef:   ref,
		ObservedAt:  time.Now(),
	}
}

func TestDetailPipelineExtractsAll(t *testing.T) {
	acc := newFakeAccessor()
	acc.pageHTML = detailPageFixture
	acc.htmlBySel[".ant-modal-content"] = issuerModalFixture

	var closeClicks int
	acc.onTrigger = func(req TriggerRequest) (TriggerResult, error) {
		switch {
		case len(req.Labels) > 0 && req.Labels[0] == "más información":
			acc.setCount(".ant-modal-content", 1)
			return TriggerResult{Found: true, Visible: true, Enabled: true, Clicked: true, Label: "Más Información"}, nil
		case len(req.Selectors) > 0 && req.Selectors[0] == ".ant-modal-close":
			closeClicks++
			acc.setCount(".ant-modal-content", 0)
			return TriggerResult{Found: true, Visible: true, Enabled: true, Clicked: true}, nil
		default:
			return TriggerResult{}, nil
		}
	}

	pipeline := NewDetailPipeline(testConfig(), newTestLogger())
	rec := catalogRecord("proyecto/42", "https://iris.example.test/proyecto/42")
	detail := pipeline.ExtractAll(context.Background(), acc, rec)

	if detail.IdentityKey != "proyecto/42" {
		t.Errorf("IdentityKey = %q; want proyecto/42", detail.IdentityKey)
	}
	if detail.Metadata.Title == nil || *detail.Metadata.Title != "Torre del Mar" {
		t.Errorf("Title = %v; want Torre del Mar", detail.Metadata.Title)
	}
	if detail.Metadata.Description == nil || !strings.Contains(*detail.Metadata.Description, "rambla de Pocitos") {
		t.Errorf("Description = %v; want the prose block", detail.Metadata.Description)
	}
	if got := detail.Metadata.Fields["zone"]; got != "Pocitos" {
		t.Errorf("Fields[zone] = %q; want Pocitos", got)
	}

	if detail.NoUnitsDetected {
		t.Error("NoUnitsDetected = true; fixture has an inventory table")
	}
	if len(detail.Units) != 2 {
		t.Fatalf("Units = %d; want 2", len(detail.Units))
	}
	if detail.Units[1].PriceFrom == nil || *detail.Units[1].PriceFrom != 178000 {
		t.Errorf("Units[1].PriceFrom = %v; want 178000", detail.Units[1].PriceFrom)
	}

	if len(detail.Assets) != 2 {
		t.Fatalf("Assets = %d; want brochure and floorplan", len(detail.Assets))
	}
	if detail.Assets[0].Classification != models.AssetBrochure {
		t.Errorf("Assets[0] = %q; want brochure first", detail.Assets[0].Classification)
	}

	if detail.Issuer == nil {
		t.Fatal("Issuer = nil; modal carried contact data")
	}
	if !detail.Issuer.FromModal {
		t.Error("Issuer.FromModal = false; want true")
	}
	if detail.Issuer.Email == nil || *detail.Issuer.Email != "ventas@altosdelpuerto.uy" {
		t.Errorf("Issuer.Email = %v; want ventas@altosdelpuerto.uy", detail.Issuer.Email)
	}
	if closeClicks != 1 {
		t.Errorf("modal close clicked %d times; want 1", closeClicks)
	}
	if detail.ExtractedAt.IsZero() {
		t.Error("ExtractedAt not stamped")
	}
}

func TestDetailPipelineIssuerPageFallback(t *testing.T) {
	// No modal trigger on the page: issuer data comes from the developer
	// section of the snapshot.
	page := `<html><body>
<h1>Parque Central</h1>
<section class="desarrollador">
	<strong>Desarrollador:</strong> Constructora Rambla
	<a href="mailto:info@rambla.com.uy">Contacto</a>
</section>
</body></html>`

	acc := newFakeAccessor()
	acc.pageHTML = page

	pipeline := NewDetailPipeline(testConfig(), newTestLogger())
	detail := pipeline.ExtractAll(context.Background(), acc, catalogRecord("proyecto/7", "https://iris.example.test/proyecto/7"))

	if detail.Issuer == nil {
		t.Fatal("Issuer = nil; developer section carries an email")
	}
	if detail.Issuer.FromModal {
		t.Error("Issuer.FromModal = true; want false for page scan")
	}
	if detail.Issuer.Email == nil || *detail.Issuer.Email != "info@rambla.com.uy" {
		t.Errorf("Issuer.Email = %v; want info@rambla.com.uy", detail.Issuer.Email)
	}
	if !detail.NoUnitsDetected {
		t.Error("NoUnitsDetected = false; page has no unit table")
	}
}

func TestDetailPipelineModalNeverAppears(t *testing.T) {
	// Trigger reports a click but no dialog container ever renders; the
	// pipeline must fall back to the page and still issue the dismissal.
	acc := newFakeAccessor()
	acc.pageHTML = `<html><body><h1>Sin modal</h1><p>comercial@desarrollos.uy</p></body></html>`
	acc.onTrigger = func(req TriggerRequest) (TriggerResult, error) {
		if len(req.Labels) > 0 && req.Labels[0] == "más información" {
			return TriggerResult{Found: true, Visible: true, Enabled: true, Clicked: true}, nil
		}
		return TriggerResult{}, nil
	}

	pipeline := NewDetailPipeline(testConfig(), newTestLogger())
	detail := pipeline.ExtractAll(context.Background(), acc, catalogRecord("proyecto/9", "https://iris.example.test/proyecto/9"))

	if detail.Issuer == nil {
		t.Fatal("Issuer = nil; the page body carries an email")
	}
	if detail.Issuer.FromModal {
		t.Error("Issuer.FromModal = true; want false when the modal never rendered")
	}
	if acc.escapes != 1 {
		t.Errorf("escape pressed %d times; want 1 (no close control resolved)", acc.escapes)
	}
}

func TestDetailPipelineBrokenSnapshot(t *testing.T) {
	acc := newFakeAccessor()
	acc.outerHTMLErr = context.DeadlineExceeded

	pipeline := NewDetailPipeline(testConfig(), newTestLogger())
	detail := pipeline.ExtractAll(context.Background(), acc, catalogRecord("proyecto/1", "https://iris.example.test/proyecto/1"))

	if detail == nil {
		t.Fatal("ExtractAll returned nil; want a partial record")
	}
	if detail.IdentityKey != "proyecto/1" {
		t.Errorf("IdentityKey = %q; want proyecto/1", detail.IdentityKey)
	}
	if len(detail.Units) != 0 || len(detail.Assets) != 0 || detail.Issuer != nil {
		t.Error("broken snapshot must yield an empty partial record")
	}
}
