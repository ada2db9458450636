package catalog

import (
	"errors"
	"math"
)

// ServiceListing is one purchasable medical service. Values are immutable
// once fetched.
type ServiceListing struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProviderID string `json:"providerId,omitempty"`
	// PriceCents is the price in minor currency units.
	PriceCents int64  `json:"priceCents"`
	Currency   string `json:"currency"`
	Category   string `json:"category,omitempty"`
}

// wireService accepts the field spellings seen across listing backends.
type wireService struct {
	ID         string   `json:"id"`
	LegacyID   string   `json:"_id"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	ProviderID string   `json:"providerId"`
	Provider   string   `json:"provider"`
	PriceCents *int64   `json:"priceCents"`
	Price      *float64 `json:"price"`
	Currency   string   `json:"currency"`
	Category   string   `json:"category"`
}

// maxPriceUnits keeps major-unit prices well inside int64 after scaling.
const maxPriceUnits = 1e15

var errInvalidPrice = errors.New("price must be a positive finite amount")

// toListing converts w. A price that is present but zero, negative, NaN or
// out of range is an error; an absent price leaves PriceCents at zero.
func (w wireService) toListing() (ServiceListing, error) {
	l := ServiceListing{
		ID:         firstNonEmpty(w.ID, w.LegacyID),
		Name:       firstNonEmpty(w.Name, w.Title),
		ProviderID: firstNonEmpty(w.ProviderID, w.Provider),
		Currency:   w.Currency,
		Category:   w.Category,
	}
	switch {
	case w.PriceCents != nil:
		if *w.PriceCents <= 0 {
			return l, errInvalidPrice
		}
		l.PriceCents = *w.PriceCents
	case w.Price != nil:
		price := *w.Price
		if math.IsNaN(price) || price <= 0 || price > maxPriceUnits {
			return l, errInvalidPrice
		}
		l.PriceCents = int64(math.Round(price * 100))
	}
	return l, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
