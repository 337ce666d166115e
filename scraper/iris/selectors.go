package iris

// All site knowledge lives in the ordered lists below so a markup change is
// a data edit, not a logic edit. Lists are tried front to back and the first
// selector that matches wins; later entries are progressively more generic.

// detailLinkSelector addresses the stable per-project anchor that every card
// carries regardless of rendering mode. Identity keys derive from it.
const detailLinkSelector = `a[href*="/proyecto/"]`

// Card containers in the catalog list view. The Ant Design table rows come
// first because the list rendering is the one the scraper switches to.
var cardSelectors = []string{
	".ant-table-row",
	".ant-table-tbody > tr",
	"div.project-card",
	"div[class*='project-card']",
	"[data-testid='project-card']",
}

// Ancestors to climb to from a detail link when no card container selector
// matches at all.
const cardFallbackAncestors = "tr, li, article, .ant-card, .ant-list-item"

// Per-field selector fallbacks inside one card, tried in order. Positional
// cells mirror the column layout of the catalog's list view.
var cardFieldSelectors = map[string][]string{
	"name":       {"[data-col='nombre']", ".project-name", "h3", "h4", "strong", "td:nth-child(2)"},
	"zone":       {"[data-col='zona']", ".project-zone", "td:nth-child(3)"},
	"delivery":   {"[data-col='entrega']", ".project-delivery", "td:nth-child(4)"},
	"status":     {"[data-col='estado']", ".project-status", ".ant-tag", "td:nth-child(5)"},
	"price":      {"[data-col='desde']", ".project-price", "td:nth-child(6)"},
	"issuer":     {"[data-col='desarrollador']", ".project-developer", "td:nth-child(7)"},
	"commission": {"[data-col='comision']", ".project-commission", "td:nth-child(8)"},
	"vp":         {"[data-col='vp']", ".project-vp", "td:nth-child(9)"},
}

// loadMoreTrigger matches the reveal-more control at the bottom of the
// catalog. The site labels it inconsistently, so matching is by text.
var loadMoreTrigger = TriggerRequest{
	Tags:   []string{"button", "a"},
	Labels: []string{"cargar más", "cargar mas", "mostrar más", "mostrar mas", "ver más", "ver mas"},
}

// listViewTrigger switches the catalog from the card grid to the denser
// list rendering the extractors are tuned for.
var listViewTrigger = TriggerRequest{
	Selectors: []string{".anticon-unordered-list", "[aria-label='lista']"},
	Tags:      []string{"button", "a", "span", "div"},
	Labels:    []string{"lista"},
}

// issuerModalTrigger opens the developer information dialog on a detail
// page. Not every project has one.
var issuerModalTrigger = TriggerRequest{
	Tags:   []string{"button", "a"},
	Labels: []string{"más información", "mas información", "información del desarrollador", "ver desarrollador"},
}

// modalCloseTrigger dismisses an open dialog; Escape is the fallback when
// none of these resolve.
var modalCloseTrigger = TriggerRequest{
	Selectors: []string{".ant-modal-close", "[aria-label='Close']", ".modal-close"},
	Tags:      []string{"button"},
	Labels:    []string{"cerrar", "aceptar"},
}

// Containers an open dialog renders into, most specific first.
var modalSelectors = []string{
	".ant-modal-content",
	".ant-modal",
	"[role='dialog']",
	".modal",
}

// Login form fields and the post-submit error banner.
var (
	loginEmailSelectors = []string{
		"input[type='email']",
		"input[name='email']",
		"#email",
		"input[placeholder*='mail']",
	}
	loginPasswordSelectors = []string{
		"input[type='password']",
		"input[name='password']",
		"#password",
	}
	loginSubmitSelectors = []string{
		"button[type='submit']",
		"button.ant-btn-primary",
		"input[type='submit']",
	}
	loginErrorSelectors = []string{
		".ant-message-error",
		".ant-alert-error",
		"[role='alert']",
		".error-message",
	}
)

// Detail page metadata: title candidates and description candidates. A
// description match must carry enough text to be prose, not a label.
var (
	titleSelectors = []string{
		"h1",
		".project-title",
		".ant-page-header-heading-title",
		"h2",
	}
	descriptionSelectors = []string{
		"[class*='description']",
		".project-description",
		"article p",
		"section p",
		"p",
	}
)

// Label fragments for the free-form field scan on detail pages, mapped to
// canonical field names. Matching is case-insensitive on normalized text.
var metadataLabels = []struct {
	Field     string
	Fragments []string
}{
	{"zone", []string{"zona", "ubicación", "ubicacion"}},
	{"delivery", []string{"entrega"}},
	{"status", []string{"estado"}},
	{"price", []string{"precio", "desde"}},
	{"issuer", []string{"desarrollador", "promotor"}},
}

// Candidate containers for the unit inventory table.
var unitTableSelectors = []string{
	"table.units-table",
	"[class*='unidades'] table",
	"[class*='tipologia'] table",
	".ant-table-container table",
	"table",
}
