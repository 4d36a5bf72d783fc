package models

// BatchRequest is the payload for POST /api/v1/run_crawler/batch.
// Either Requests or AllProducts must be set.
type BatchRequest struct {
	Requests []CrawlerRequest `json:"requests" binding:"omitempty,max=100,dive"`

	// AllProducts scrapes every stored product, tagging each run with its SKU.
	AllProducts bool `json:"all_products"`
}

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchResponse acknowledges a submitted batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Completed int                `json:"completed"`
	Failed    int                `json:"failed"`
	Total     int                `json:"total"`
	CreatedAt int64              `json:"created_at"`
	Results   []*CrawlerResponse `json:"results"`
}
