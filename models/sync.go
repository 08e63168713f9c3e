package models

// SyncProductRequest imports one product by numeric id or handle.
type SyncProductRequest struct {
	Identifier string `json:"identifier"`
	ByHandle   bool   `json:"by_handle"`
	BrandID    string `json:"brand_id"`
}

type BatchSyncRequest struct {
	Identifiers []string `json:"identifiers"`
	ByHandle    bool     `json:"by_handle"`
	BrandID     string   `json:"brand_id"`
}

type SyncProductResult struct {
	Success bool     `json:"success"`
	Product *Product `json:"product,omitempty"`
	Message string   `json:"message,omitempty"`
}

type ImportSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type ImportRow struct {
	Success    bool     `json:"success"`
	Identifier string   `json:"identifier"`
	Product    *Product `json:"product,omitempty"`
	Message    string   `json:"message"`
	Error      string   `json:"error,omitempty"`
}

// BatchImportResult is produced once per import submission and not kept.
type BatchImportResult struct {
	Success bool          `json:"success"`
	Summary ImportSummary `json:"summary"`
	Results []ImportRow   `json:"results"`
}

// MetafieldRequest targets the storefront metafield of a product row.
type MetafieldRequest struct {
	ProductID string `json:"product_id"`
	BrandID   string `json:"brand_id"`
}

type MetafieldResult struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Content  *GeneratedContent `json:"content,omitempty"`
	SyncedAt string            `json:"synced_at,omitempty"`
}
