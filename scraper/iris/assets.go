package iris

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"iris-scraper/models"
	"iris-scraper/normalize"
)

// Downloadable file extensions and the default classifications they imply
// when no keyword matched.
var assetExtensions = map[string]string{
	"pdf":  models.AssetOther,
	"doc":  models.AssetOther,
	"docx": models.AssetOther,
	"zip":  models.AssetOther,
	"jpg":  models.AssetImage,
	"jpeg": models.AssetImage,
	"png":  models.AssetImage,
	"webp": models.AssetImage,
}

// assetKeywords classifies a link by fragments of its label or URL path.
// Checked in order, first class with a hit wins.
var assetKeywords = []struct {
	class     string
	fragments []string
}{
	{models.AssetBrochure, []string{"brochure", "folleto", "prospecto"}},
	{models.AssetFloorplan, []string{"plano", "floor", "plant"}},
	{models.AssetMemoria, []string{"memoria", "descriptiva"}},
	{models.AssetLogo, []string{"logo"}},
}

// Rank used for the stable output ordering, most interesting class first.
var assetClassRank = map[string]int{
	models.AssetBrochure:  0,
	models.AssetFloorplan: 1,
	models.AssetMemoria:   2,
	models.AssetLogo:      3,
	models.AssetImage:     4,
	models.AssetOther:     5,
}

const maxAssetsPerPage = 50

// collectAssets enumerates every link-like element on a detail page
// snapshot, resolves targets against the page URL and keeps the ones that
// either match an asset keyword or carry a downloadable extension. Output is
// deduplicated by URL and ordered by classification.
func collectAssets(doc *goquery.Document, pageURL *url.URL) []models.AssetLink {
	seen := make(map[string]bool)
	var assets []models.AssetLink

	add := func(target, label string, isImage bool) {
		abs, ok := normalize.AbsoluteURL(pageURL, target)
		if !ok || seen[abs] {
			return
		}
		asset, ok := classifyAsset(abs, label, isImage)
		if !ok {
			return
		}
		seen[abs] = true
		assets = append(assets, asset)
	}

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		label := selText(link)
		if label == "" {
			label, _ = firstAttr(link, []string{"img"}, "alt")
		}
		add(href, label, false)
	})
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")
		add(src, alt, true)
	})

	sort.SliceStable(assets, func(i, j int) bool {
		ri, rj := assetClassRank[assets[i].Classification], assetClassRank[assets[j].Classification]
		if ri != rj {
			return ri < rj
		}
		return assets[i].URL < assets[j].URL
	})
	if len(assets) > maxAssetsPerPage {
		assets = assets[:maxAssetsPerPage]
	}
	return assets
}

// classifyAsset decides whether a resolved URL is worth keeping and which
// class it belongs to. A keyword hit keeps the link even without a
// recognizable extension; without a keyword the extension must be one of the
// downloadable set.
func classifyAsset(absURL, label string, isImage bool) (models.AssetLink, bool) {
	ext := normalize.FileExt(absURL)
	haystack := strings.ToLower(label + " " + absURL)

	for _, kw := range assetKeywords {
		for _, fragment := range kw.fragments {
			if strings.Contains(haystack, fragment) {
				return models.AssetLink{
					URL:            absURL,
					Label:          label,
					Classification: kw.class,
					MimeHint:       ext,
				}, true
			}
		}
	}

	class, known := assetExtensions[ext]
	if !known {
		return models.AssetLink{}, false
	}
	if isImage && class == models.AssetOther {
		class = models.AssetImage
	}
	return models.AssetLink{
		URL:            absURL,
		Label:          label,
		Classification: class,
		MimeHint:       ext,
	}, true
}
