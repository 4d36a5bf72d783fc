package models

// Product is a monitored product row.
type Product struct {
	ID     int64   `json:"id"`
	SKU    string  `json:"sku"`
	URL    string  `json:"url"`
	Output *string `json:"output"`
}

// ProductCreate is the payload for POST /api/v1/products.
type ProductCreate struct {
	SKU    string  `json:"sku" binding:"required"`
	URL    string  `json:"url" binding:"required,url"`
	Output *string `json:"output,omitempty"`
}

// ProductUpdate is the payload for PUT/PATCH /api/v1/products/:id.
// Only non-nil fields overwrite the stored row.
type ProductUpdate struct {
	SKU    *string `json:"sku,omitempty"`
	URL    *string `json:"url,omitempty" binding:"omitempty,url"`
	Output *string `json:"output,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (u *ProductUpdate) Empty() bool {
	return u.SKU == nil && u.URL == nil && u.Output == nil
}

// ProductResponse wraps a product with a status code and message,
// mirroring the HTTP status for clients that only read the body.
type ProductResponse struct {
	Product
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// ProductListResponse is the response for GET /api/v1/products. Each item
// carries the same status and message as a single GET.
type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Skip     int               `json:"skip"`
	Limit    int               `json:"limit"`
}

// Product response messages.
const (
	MsgProductCreated   = "Product created successfully"
	MsgProductRetrieved = "Product retrieved successfully"
	MsgProductUpdated   = "Product updated successfully"
	MsgProductDeleted   = "Product deleted successfully"
	MsgProductNotFound  = "Product not found"
)
