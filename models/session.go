package models

import "time"

// Push status filter values for the product list.
const (
	FilterAll       = ""
	FilterProcessed = "true"
	FilterPending   = "false"
)

// ListState is the product-list filter and page position for one brand.
type ListState struct {
	Search     string `json:"search"`
	Processed  string `json:"processed"`
	PushStatus string `json:"push_status"`
	Page       int    `json:"page"`
}

// Session is the server-side record behind the sid cookie.
type Session struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	Email         string               `json:"email"`
	AccessToken   string               `json:"access_token"`
	RefreshToken  string               `json:"refresh_token"`
	ExpiresAt     time.Time            `json:"expires_at"`
	ActiveBrandID string               `json:"active_brand_id,omitempty"`
	Brands        []Brand              `json:"brands,omitempty"`
	BrandsLoaded  bool                 `json:"brands_loaded"`
	ListState     map[string]ListState `json:"list_state,omitempty"`
	Prompts       map[string][]Prompt  `json:"prompts,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// ExpiresWithin reports whether the access token expires before now+d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return s.ExpiresAt.IsZero() || !now.Add(d).Before(s.ExpiresAt)
}

// ActiveBrand returns the active brand, if any.
func (s *Session) ActiveBrand() (Brand, bool) {
	if s.ActiveBrandID == "" {
		return Brand{}, false
	}
	for _, b := range s.Brands {
		if b.ID == s.ActiveBrandID {
			return b, true
		}
	}
	return Brand{}, false
}

// ClearBrands drops all brand-scoped state.
func (s *Session) ClearBrands() {
	s.ActiveBrandID = ""
	s.Brands = nil
	s.BrandsLoaded = false
	s.ListState = nil
	s.Prompts = nil
}

// SetListState records the list position for one brand.
func (s *Session) SetListState(brandID string, st ListState) {
	if s.ListState == nil {
		s.ListState = make(map[string]ListState)
	}
	s.ListState[brandID] = st
}

func (s *Session) SetPrompts(brandID string, prompts []Prompt) {
	if s.Prompts == nil {
		s.Prompts = make(map[string][]Prompt)
	}
	s.Prompts[brandID] = prompts
}
