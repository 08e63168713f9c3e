package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"whybuy-dashboard/models"
)

// ProductQuery is the product-list filter sent to the API service.
type ProductQuery struct {
	Page       int
	Limit      int
	Search     string
	Processed  string
	PushStatus string
}

func (q ProductQuery) values(brandID string) url.Values {
	v := url.Values{}
	v.Set("brand_id", brandID)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Processed != "" {
		v.Set("processed", q.Processed)
	}
	if q.PushStatus != "" {
		v.Set("push_status", q.PushStatus)
	}
	return v
}

// BackendClient calls the content API service. Every call takes the bearer
// token fetched for it by the caller.
type BackendClient struct {
	rest restClient
}

func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	return &BackendClient{rest: newRESTClient(baseURL, timeout)}
}

func brandQuery(brandID string) url.Values {
	return url.Values{"brand_id": {brandID}}
}

func (b *BackendClient) ListProducts(ctx context.Context, token, brandID string, q ProductQuery) (*models.ProductPage, error) {
	var page models.ProductPage
	if err := b.rest.call(ctx, http.MethodGet, "/api/products", q.values(brandID), bearer(token), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProduct loads a product by catalog product_id.
func (b *BackendClient) GetProduct(ctx context.Context, token, brandID, productID string) (*models.Product, error) {
	var p models.Product
	if err := b.rest.call(ctx, http.MethodGet, "/api/products/"+url.PathEscape(productID), brandQuery(brandID), bearer(token), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FlagImage toggles one image flag on the product row id.
func (b *BackendClient) FlagImage(ctx context.Context, token, brandID, rowID string, req models.FlagImageRequest) (*models.FlagImageResult, error) {
	var res models.FlagImageResult
	path := "/api/products/" + url.PathEscape(rowID) + "/flag-image"
	if err := b.rest.call(ctx, http.MethodPost, path, brandQuery(brandID), bearer(token), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) PushProduct(ctx context.Context, token string, req models.PushRequest) (*models.PushResult, error) {
	var res models.PushResult
	if err := b.rest.call(ctx, http.MethodPost, "/api/products/push", nil, bearer(token), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) SyncProduct(ctx context.Context, token string, req models.SyncProductRequest) (*models.SyncProductResult, error) {
	var res models.SyncProductResult
	if err := b.rest.call(ctx, http.MethodPost, "/api/sync/product", nil, bearer(token), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) SyncBatch(ctx context.Context, token string, req models.BatchSyncRequest) (*models.BatchImportResult, error) {
	var res models.BatchImportResult
	if err := b.rest.call(ctx, http.MethodPost, "/api/sync/products/batch", nil, bearer(token), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RefreshProduct re-pulls storefront data for a product row id.
func (b *BackendClient) RefreshProduct(ctx context.Context, token, brandID, rowID string) (*models.SyncProductResult, error) {
	var res models.SyncProductResult
	path := "/api/sync/product/" + url.PathEscape(rowID) + "/refresh"
	if err := b.rest.call(ctx, http.MethodPost, path, brandQuery(brandID), bearer(token), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) PushMetafield(ctx context.Context, token string, req models.MetafieldRequest) (*models.MetafieldResult, error) {
	return b.metafield(ctx, token, "push", req)
}

func (b *BackendClient) PullMetafield(ctx context.Context, token string, req models.MetafieldRequest) (*models.MetafieldResult, error) {
	return b.metafield(ctx, token, "pull", req)
}

func (b *BackendClient) metafield(ctx context.Context, token, direction string, req models.MetafieldRequest) (*models.MetafieldResult, error) {
	var res models.MetafieldResult
	if err := b.rest.call(ctx, http.MethodPost, "/api/sync/metafield/"+direction, nil, bearer(token), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) RunPipeline(ctx context.Context, token string, req models.RunPipelineRequest) (*models.RunPipelineResult, error) {
	var res models.RunPipelineResult
	if err := b.rest.call(ctx, http.MethodPost, "/api/pipeline/run", nil, bearer(token), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) ListJobs(ctx context.Context, token, brandID string) ([]models.PipelineJob, error) {
	var res models.JobList
	if err := b.rest.call(ctx, http.MethodGet, "/api/pipeline/jobs", brandQuery(brandID), bearer(token), nil, &res); err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

func (b *BackendClient) ProductStatus(ctx context.Context, token, brandID, productID string) (*models.ProductStatus, error) {
	var res models.ProductStatus
	path := "/api/pipeline/product-status/" + url.PathEscape(productID)
	if err := b.rest.call(ctx, http.MethodGet, path, brandQuery(brandID), bearer(token), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *BackendClient) ListPrompts(ctx context.Context, token, brandID string) ([]models.Prompt, error) {
	var res models.PromptList
	if err := b.rest.call(ctx, http.MethodGet, "/api/prompts/", brandQuery(brandID), bearer(token), nil, &res); err != nil {
		return nil, err
	}
	return res.Prompts, nil
}

func (b *BackendClient) UpdatePrompt(ctx context.Context, token string, req models.UpdatePromptRequest) error {
	return b.rest.call(ctx, http.MethodPost, "/api/prompts/update", nil, bearer(token), req, nil)
}

func (b *BackendClient) DashboardStats(ctx context.Context, token, brandID string) (*models.DashboardStats, error) {
	var res models.DashboardStats
	if err := b.rest.call(ctx, http.MethodGet, "/api/dashboard/stats", brandQuery(brandID), bearer(token), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
