package models

// Brand is a tenant workspace. All products, prompts and jobs are scoped to one.
type Brand struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// UserAccess is the row holding the brand codes a user may open.
type UserAccess struct {
	AllowedBrands []string `json:"allowed_brands"`
}

// FilterAllowed keeps only brands whose code appears in allowed.
func FilterAllowed(brands []Brand, allowed []string) []Brand {
	set := make(map[string]struct{}, len(allowed))
	for _, code := range allowed {
		set[code] = struct{}{}
	}
	out := make([]Brand, 0, len(brands))
	for _, b := range brands {
		if _, ok := set[b.Code]; ok {
			out = append(out, b)
		}
	}
	return out
}
