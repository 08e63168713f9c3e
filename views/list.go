package views

import (
	"strings"

	"whybuy-dashboard/clients"
	"whybuy-dashboard/models"
)

// PageSize is the fixed product-list page size.
const PageSize = 20

// Filters is a product-list filter change submitted by the page.
type Filters struct {
	Search     string
	Processed  string
	PushStatus string
}

func normalizeProcessed(v string) string {
	switch v {
	case models.FilterProcessed, models.FilterPending:
		return v
	}
	return models.FilterAll
}

func normalizePushStatus(v string) string {
	switch v {
	case models.PushStatusPushed, models.PushStatusPending:
		return v
	}
	return ""
}

// Apply returns the list state after f and a page request. Any filter change
// resets to page 1; otherwise page is honoured (minimum 1).
func Apply(state models.ListState, f Filters, page int) models.ListState {
	next := models.ListState{
		Search:     strings.TrimSpace(f.Search),
		Processed:  normalizeProcessed(f.Processed),
		PushStatus: normalizePushStatus(f.PushStatus),
		Page:       page,
	}
	if next.Search != state.Search || next.Processed != state.Processed || next.PushStatus != state.PushStatus {
		next.Page = 1
	}
	if next.Page < 1 {
		next.Page = 1
	}
	return next
}

// HasNext is true only when the last page came back full. The total count is
// deliberately not consulted.
func HasNext(rows int) bool {
	return rows == PageSize
}

// HasPrev reports whether a previous page exists.
func HasPrev(state models.ListState) bool {
	return state.Page > 1
}

// Query converts state into the API service's list query.
func Query(state models.ListState) clients.ProductQuery {
	page := state.Page
	if page < 1 {
		page = 1
	}
	return clients.ProductQuery{
		Page:       page,
		Limit:      PageSize,
		Search:     state.Search,
		Processed:  state.Processed,
		PushStatus: state.PushStatus,
	}
}
