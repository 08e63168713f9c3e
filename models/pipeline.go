package models

import "time"

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"

	ModeEcommerce = "ecommerce"
	ModeLookbook  = "lookbook"
)

// PipelineJob is one asynchronous pipeline execution over a set of products.
type PipelineJob struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	TotalProducts int    `json:"total_products"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Terminal reports whether the job reached completed or failed.
func (j PipelineJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Percent is progress over total_products, clamped to [0,100].
func (j PipelineJob) Percent() int {
	if j.TotalProducts <= 0 {
		return 0
	}
	p := j.Progress * 100 / j.TotalProducts
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Started parses started_at. Backend timestamps come in RFC3339 with or
// without fractional seconds.
func (j PipelineJob) Started() (time.Time, bool) {
	return ParseTimestamp(j.StartedAt)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07",
}

func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type RunPipelineRequest struct {
	BrandID    string   `json:"brand_id"`
	ProductIDs []string `json:"product_ids"`
	Modes      []string `json:"modes"`
}

type RunPipelineResult struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

type JobList struct {
	Jobs []PipelineJob `json:"jobs"`
}

// ProductStatus is the is-processing flag for one product.
type ProductStatus struct {
	IsProcessing bool `json:"is_processing"`
}
