package models

// Status is the availability label of a scraped product page.
type Status string

// The closed set of availability labels. The string values are the
// labels written to result files.
const (
	StatusLinkBroken              Status = "Link broken"
	StatusInStock                 Status = "In stock"
	StatusOutOfStock              Status = "Out of stock"
	StatusInStockZipRequired      Status = "In stock - Zip code required"
	StatusAvailableExternalVendor Status = "Available through external vendors"
	StatusUnknown                 Status = "Unknown"
)

// Statuses lists every valid label.
var Statuses = []Status{
	StatusLinkBroken,
	StatusInStock,
	StatusOutOfStock,
	StatusInStockZipRequired,
	StatusAvailableExternalVendor,
	StatusUnknown,
}

// Valid reports whether s is one of the defined labels.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// BrokenPrice and BrokenCategory are written for pages detected as gone.
const (
	BrokenPrice    = "0"
	BrokenCategory = "Link broken"
)

// ScrapeResult is the outcome of one scrape invocation.
type ScrapeResult struct {
	Price    *string `json:"price"`
	Status   Status  `json:"status"`
	Category *string `json:"category"`
}

// Normalize forces Status into the closed label set. An unset or
// unrecognised status becomes StatusLinkBroken.
func (r *ScrapeResult) Normalize() {
	if !r.Status.Valid() {
		r.Status = StatusLinkBroken
	}
}

// BrokenResult returns the result recorded for a dead product page.
func BrokenResult() *ScrapeResult {
	price, category := BrokenPrice, BrokenCategory
	return &ScrapeResult{
		Price:    &price,
		Status:   StatusLinkBroken,
		Category: &category,
	}
}
