package brand

import (
	"context"
	"strings"

	"whybuy-dashboard/models"

	"go.uber.org/zap"
)

// Outcome is what a path change did to the active brand.
type Outcome int

const (
	Unchanged Outcome = iota
	Switched
	Cleared
	// Unknown means the path named a brand the user cannot open. The active
	// brand is left as it was.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Switched:
		return "switched"
	case Cleared:
		return "cleared"
	case Unknown:
		return "unknown"
	}
	return "unchanged"
}

// Resolution is the active brand after a path change.
type Resolution struct {
	Brand   *models.Brand
	Outcome Outcome
	Code    string
}

// Active reports whether a brand is active after resolution.
func (r Resolution) Active() bool {
	return r.Brand != nil
}

// FirstSegment returns the first non-empty path segment.
func FirstSegment(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			return seg
		}
	}
	return ""
}

// Resolve picks the active brand for path. brands must already be filtered
// to the user's allow-list, so unauthorized codes resolve like unknown ones.
func Resolve(path string, brands []models.Brand, current *models.Brand) Resolution {
	code := FirstSegment(path)
	if code == "" || code == "login" {
		return Resolution{Outcome: Cleared}
	}

	for i := range brands {
		if brands[i].Code != code {
			continue
		}
		b := brands[i]
		if current != nil && current.ID == b.ID {
			return Resolution{Brand: &b, Outcome: Unchanged, Code: code}
		}
		return Resolution{Brand: &b, Outcome: Switched, Code: code}
	}

	return Resolution{Brand: current, Outcome: Unknown, Code: code}
}

// Source provides the brand list and the per-user allow-list.
type Source interface {
	ListBrands(ctx context.Context, token string) ([]models.Brand, error)
	UserAccess(ctx context.Context, token, userID string) (*models.UserAccess, error)
}

// LoadAllowed returns the brands userID may open. Users without an access row
// keep the full list, and so do users whose access row cannot be read.
func LoadAllowed(ctx context.Context, src Source, token, userID string, log *zap.Logger) ([]models.Brand, error) {
	brands, err := src.ListBrands(ctx, token)
	if err != nil {
		return nil, err
	}
	access, err := src.UserAccess(ctx, token, userID)
	if err != nil {
		log.Warn("user access lookup failed, showing all brands", zap.String("user_id", userID), zap.Error(err))
		return brands, nil
	}
	if access == nil {
		return brands, nil
	}
	return models.FilterAllowed(brands, access.AllowedBrands), nil
}
