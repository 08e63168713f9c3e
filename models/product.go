package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Pipeline step keys inside generated_content.pipeline_outputs.
const (
	StepMetadata        = "step1_metadata"
	StepAttributes      = "step2_attributes"
	StepEcommerceImages = "step4_ecommerce_images"
	StepLookbookImages  = "step6_lookbook_images"
)

const (
	PushStatusPushed  = "pushed"
	PushStatusPending = "pending"

	ImageStatusOK     = "ok"
	ImageStatusFailed = "failed"

	ImageTypeEcommerce = "ecommerce"
	ImageTypeLookbook  = "lookbook"
)

// FlexString decodes both JSON strings and numbers. Storefront ids arrive as
// either depending on which service wrote the row.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// ShopifyData is the storefront copy captured at sync time.
type ShopifyData struct {
	Title            string                 `json:"title"`
	Handle           string                 `json:"handle"`
	BodyHTML         string                 `json:"body_html"`
	Status           string                 `json:"status"`
	PublishedAt      string                 `json:"published_at"`
	UpdatedAt        string                 `json:"updated_at"`
	CustomMetafields map[string]interface{} `json:"custom_metafields,omitempty"`
}

// Product is the backend's product row. The client never mutates it except
// for the push status patch.
type Product struct {
	ID                string           `json:"id"`
	ProductID         FlexString       `json:"product_id"`
	Title             string           `json:"title"`
	Vendor            string           `json:"vendor"`
	ProductType       string           `json:"product_type"`
	ImageURLs         []string         `json:"image_urls"`
	Processed         bool             `json:"processed"`
	Flagged           bool             `json:"flagged"`
	PushStatus        string           `json:"push_status"`
	PushedAt          string           `json:"pushed_at,omitempty"`
	ShopifyID         FlexString       `json:"shopify_id,omitempty"`
	ShopifyHandle     string           `json:"shopify_handle,omitempty"`
	ShopifyStatus     string           `json:"shopify_status,omitempty"`
	ShopifyRawData    *ShopifyData     `json:"shopify_raw_data,omitempty"`
	GeneratedContent  GeneratedContent `json:"generated_content"`
	UploadedAt        string           `json:"uploaded_at"`
	LastSyncedAt      string           `json:"last_synced_at,omitempty"`
	MetafieldSyncedAt string           `json:"metafield_synced_at,omitempty"`

	raw json.RawMessage
}

func (p *Product) UnmarshalJSON(b []byte) error {
	type alias Product
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = Product(a)
	p.raw = append(json.RawMessage(nil), b...)
	return nil
}

// Synced reports whether the product was imported from the storefront.
func (p *Product) Synced() bool {
	return p.ShopifyID != ""
}

func (p *Product) Pushed() bool {
	return p.PushStatus == PushStatusPushed
}

// MarkPushed patches the push fields after a confirmed push.
func (p *Product) MarkPushed(now time.Time) {
	p.PushStatus = PushStatusPushed
	p.PushedAt = now.UTC().Format(time.RFC3339)
	p.raw = nil
}

// PrettyJSON returns the row as received, indented. Falls back to the typed
// fields when the product was patched locally.
func (p *Product) PrettyJSON() string {
	var buf bytes.Buffer
	if len(p.raw) > 0 {
		if err := json.Indent(&buf, p.raw, "", "  "); err == nil {
			return buf.String()
		}
	}
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

// GeneratedContent wraps the per-step pipeline outputs. Steps are decoded on
// demand since their shape differs per step.
type GeneratedContent struct {
	PipelineOutputs map[string]json.RawMessage `json:"pipeline_outputs,omitempty"`
}

type MetadataOutput struct {
	OptimizedTitle       string   `json:"optimized_title"`
	OptimizedDescription string   `json:"optimized_description"`
	SEOKeywords          []string `json:"seo_keywords"`
}

type Attribute struct {
	Name            string `json:"name"`
	Title           string `json:"title"`
	MatrixAttribute string `json:"matrix_attribute"`
	Copy            string `json:"copy"`
}

// AttributesOutput keeps the attribute list plus every top-level field for
// key/value display.
type AttributesOutput struct {
	Attributes []Attribute
	Fields     map[string]json.RawMessage
}

// Find returns the attribute whose name or title equals key.
func (a *AttributesOutput) Find(key string) (Attribute, bool) {
	if a == nil || key == "" {
		return Attribute{}, false
	}
	for _, attr := range a.Attributes {
		if attr.Name == key || attr.Title == key {
			return attr, true
		}
	}
	return Attribute{}, false
}

// GeneratedImage is one image produced by an image step.
type GeneratedImage struct {
	ImagePath     string `json:"image_path"`
	ShopifyCDNURL string `json:"shopify_cdn_url,omitempty"`
	Attribute     string `json:"attribute,omitempty"`
	Scenario      string `json:"scenario,omitempty"`
	Status        string `json:"status"`
	Flagged       bool   `json:"flagged"`
}

// Source is the URL used for display and download. The storefront CDN copy
// wins over the local generation path.
func (g GeneratedImage) Source() string {
	if g.ShopifyCDNURL != "" {
		return g.ShopifyCDNURL
	}
	return g.ImagePath
}

func (g GeneratedImage) Failed() bool {
	return g.Status == ImageStatusFailed
}

// Label is the attribute for ecommerce images and the scenario for lookbook.
func (g GeneratedImage) Label() string {
	if g.Attribute != "" {
		return g.Attribute
	}
	return g.Scenario
}

func (c GeneratedContent) step(name string, out interface{}) bool {
	raw, ok := c.PipelineOutputs[name]
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (c GeneratedContent) Metadata() (*MetadataOutput, bool) {
	var m MetadataOutput
	if !c.step(StepMetadata, &m) {
		return nil, false
	}
	return &m, true
}

func (c GeneratedContent) Attributes() (*AttributesOutput, bool) {
	var fields map[string]json.RawMessage
	if !c.step(StepAttributes, &fields) {
		return nil, false
	}
	out := &AttributesOutput{Fields: fields}
	if raw, ok := fields["attributes"]; ok {
		_ = json.Unmarshal(raw, &out.Attributes)
	}
	return out, true
}

func (c GeneratedContent) EcommerceImages() ([]GeneratedImage, bool) {
	var s struct {
		Images []GeneratedImage `json:"ecommerce_images"`
	}
	if !c.step(StepEcommerceImages, &s) {
		return nil, false
	}
	return s.Images, true
}

func (c GeneratedContent) LookbookImages() ([]GeneratedImage, bool) {
	var s struct {
		Images []GeneratedImage `json:"lookbook_images"`
	}
	if !c.step(StepLookbookImages, &s) {
		return nil, false
	}
	return s.Images, true
}

// Images returns the image list for an image type.
func (c GeneratedContent) Images(imageType string) ([]GeneratedImage, bool) {
	switch imageType {
	case ImageTypeEcommerce:
		return c.EcommerceImages()
	case ImageTypeLookbook:
		return c.LookbookImages()
	}
	return nil, false
}

// FieldText renders a raw attribute value for display: strings unquoted,
// everything else as compact JSON.
func FieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return string(raw)
}

// ProductPage is the paginated list response.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// FlagImageRequest toggles the review flag of one generated image.
type FlagImageRequest struct {
	ImageType  string `json:"image_type"`
	ImageIndex int    `json:"image_index"`
	Flagged    bool   `json:"flagged"`
}

type FlagImageResult struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	Product          Product `json:"product"`
	HasFlaggedImages bool    `json:"has_flagged_images"`
}

type PushRequest struct {
	ProductID string `json:"product_id"`
	BrandID   string `json:"brand_id"`
}

type PushResult struct {
	Success bool                   `json:"success"`
	Details map[string]interface{} `json:"details,omitempty"`
}
