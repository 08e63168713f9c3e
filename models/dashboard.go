package models

// DashboardStats are the aggregate counters for one brand.
type DashboardStats struct {
	TotalProducts     int           `json:"total_products"`
	ProcessedProducts int           `json:"processed_products"`
	PendingProducts   int           `json:"pending_products"`
	ActiveJobsCount   int           `json:"active_jobs_count"`
	RecentJobs        []PipelineJob `json:"recent_jobs"`
}

// ProcessedShare is the processed percentage of all products.
func (s DashboardStats) ProcessedShare() int {
	if s.TotalProducts <= 0 {
		return 0
	}
	return s.ProcessedProducts * 100 / s.TotalProducts
}
