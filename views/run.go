package views

import (
	"errors"
	"strings"

	"whybuy-dashboard/models"
)

var (
	ErrNoModes     = errors.New("select at least one pipeline mode")
	ErrNoProducts  = errors.New("select at least one product")
	ErrUnknownMode = errors.New("unknown pipeline mode")
)

// Modes lists the pipeline modes in display order.
var Modes = []string{models.ModeEcommerce, models.ModeLookbook}

// ValidateModes returns the distinct valid modes or an error. It never
// contacts the API service.
func ValidateModes(modes []string) ([]string, error) {
	seen := make(map[string]bool, len(modes))
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		if m != models.ModeEcommerce && m != models.ModeLookbook {
			return nil, ErrUnknownMode
		}
		seen[m] = true
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, ErrNoModes
	}
	return out, nil
}

// ValidateRun checks a list-view run request: at least one mode and at least
// one product.
func ValidateRun(productIDs, modes []string) ([]string, []string, error) {
	cleanModes, err := ValidateModes(modes)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(productIDs))
	seen := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil, ErrNoProducts
	}
	return ids, cleanModes, nil
}
