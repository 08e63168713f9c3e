package views

import (
	"html/template"
	"sort"

	"whybuy-dashboard/models"

	"github.com/microcosm-cc/bluemonday"
)

const (
	TabMetadata  = "metadata"
	TabEcommerce = "ecommerce"
	TabLookbook  = "lookbook"
	TabShopify   = "shopify"
	TabJSON      = "json"
)

var htmlPolicy = bluemonday.UGCPolicy()

// Tabs lists the detail tabs available for p. The storefront tab exists only
// for synced products.
func Tabs(p *models.Product) []string {
	tabs := []string{TabMetadata, TabEcommerce, TabLookbook}
	if p.Synced() {
		tabs = append(tabs, TabShopify)
	}
	return append(tabs, TabJSON)
}

// SelectTab returns requested when it is available for p, else metadata.
func SelectTab(p *models.Product, requested string) string {
	for _, t := range Tabs(p) {
		if t == requested {
			return t
		}
	}
	return TabMetadata
}

// ImageCard is one generated image as rendered.
type ImageCard struct {
	Type      string            `json:"type"`
	Index     int               `json:"index"`
	Src       string            `json:"src"`
	Label     string            `json:"label"`
	Failed    bool              `json:"failed"`
	Flagged   bool              `json:"flagged"`
	Attribute *models.Attribute `json:"attribute,omitempty"`
}

// AttributeRow is one key/value of the attribute step.
type AttributeRow struct {
	Key   string
	Value string
}

type StorefrontView struct {
	Title       string
	Handle      string
	Status      string
	PublishedAt string
	UpdatedAt   string
	BodyHTML    template.HTML
	Metafields  map[string]interface{}
}

// Detail is everything the product page renders.
type Detail struct {
	Product          *models.Product
	Tabs             []string
	ActiveTab        string
	Metadata         *models.MetadataOutput
	AttributeRows    []AttributeRow
	Attributes       []models.Attribute
	Ecommerce        []ImageCard
	EcommerceReady   bool
	Lookbook         []ImageCard
	LookbookReady    bool
	Storefront       *StorefrontView
	HasFlaggedImages bool
	JSON             string
	Processing       bool
}

// BuildDetail assembles the product page model from a server product copy.
func BuildDetail(p *models.Product, tab string, processing bool) *Detail {
	d := &Detail{
		Product:    p,
		Tabs:       Tabs(p),
		ActiveTab:  SelectTab(p, tab),
		JSON:       p.PrettyJSON(),
		Processing: processing,
	}

	d.Metadata, _ = p.GeneratedContent.Metadata()

	attrs, _ := p.GeneratedContent.Attributes()
	if attrs != nil {
		d.Attributes = attrs.Attributes
		for k, v := range attrs.Fields {
			if k == "attributes" {
				continue
			}
			d.AttributeRows = append(d.AttributeRows, AttributeRow{Key: k, Value: models.FieldText(v)})
		}
		sort.Slice(d.AttributeRows, func(i, j int) bool { return d.AttributeRows[i].Key < d.AttributeRows[j].Key })
	}

	if imgs, ok := p.GeneratedContent.EcommerceImages(); ok {
		d.EcommerceReady = true
		d.Ecommerce = cards(models.ImageTypeEcommerce, imgs, attrs)
	}
	if imgs, ok := p.GeneratedContent.LookbookImages(); ok {
		d.LookbookReady = true
		d.Lookbook = cards(models.ImageTypeLookbook, imgs, nil)
	}
	for _, c := range append(append([]ImageCard{}, d.Ecommerce...), d.Lookbook...) {
		if c.Flagged {
			d.HasFlaggedImages = true
			break
		}
	}

	if p.Synced() && p.ShopifyRawData != nil {
		raw := p.ShopifyRawData
		d.Storefront = &StorefrontView{
			Title:       raw.Title,
			Handle:      raw.Handle,
			Status:      raw.Status,
			PublishedAt: raw.PublishedAt,
			UpdatedAt:   raw.UpdatedAt,
			BodyHTML:    SanitizeHTML(raw.BodyHTML),
			Metafields:  raw.CustomMetafields,
		}
	}
	return d
}

func cards(imageType string, imgs []models.GeneratedImage, attrs *models.AttributesOutput) []ImageCard {
	out := make([]ImageCard, 0, len(imgs))
	for i, img := range imgs {
		c := ImageCard{
			Type:    imageType,
			Index:   i,
			Label:   img.Label(),
			Failed:  img.Failed(),
			Flagged: img.Flagged,
		}
		// failed images never expose their source
		if !c.Failed {
			c.Src = img.Source()
		}
		if a, ok := attrs.Find(img.Attribute); ok {
			c.Attribute = &a
		}
		out = append(out, c)
	}
	return out
}

// SanitizeHTML renders storefront HTML safe for embedding.
func SanitizeHTML(s string) template.HTML {
	return template.HTML(htmlPolicy.Sanitize(s))
}
