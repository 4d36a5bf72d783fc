package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/store"
)

// ProductStore is the persistence behind the product routes.
type ProductStore interface {
	Create(ctx context.Context, in *models.ProductCreate) (*models.Product, error)
	Get(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context, skip, limit int) ([]models.Product, error)
	Update(ctx context.Context, id int64, in *models.ProductUpdate) (*models.Product, error)
	Delete(ctx context.Context, id int64) (*models.Product, error)
	WriteCSV(ctx context.Context, w io.Writer, limit int) error
}

type listQuery struct {
	Skip  int `form:"skip" binding:"omitempty,min=0"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		invalidInput(c, errors.New("product id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func productResponse(c *gin.Context, status int, p *models.Product, msg string) {
	c.JSON(status, models.ProductResponse{Product: *p, StatusCode: status, Message: msg})
}

// CreateProduct handles POST /api/v1/products.
func CreateProduct(st ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ProductCreate
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		p, err := st.Create(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		productResponse(c, http.StatusCreated, p, models.MsgProductCreated)
	}
}

// ListProducts handles GET /api/v1/products?skip=&limit=.
func ListProducts(st ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			invalidInput(c, err)
			return
		}
		if q.Limit == 0 {
			q.Limit = store.DefaultLimit
		}
		products, err := st.List(c.Request.Context(), q.Skip, q.Limit)
		if err != nil {
			respondError(c, err)
			return
		}
		items := make([]models.ProductResponse, 0, len(products))
		for _, p := range products {
			items = append(items, models.ProductResponse{Product: p, StatusCode: http.StatusOK, Message: models.MsgProductRetrieved})
		}
		c.JSON(http.StatusOK, models.ProductListResponse{Products: items, Skip: q.Skip, Limit: q.Limit})
	}
}

// GetProduct handles GET /api/v1/products/:id.
func GetProduct(st ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := productID(c)
		if !ok {
			return
		}
		p, err := st.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		productResponse(c, http.StatusOK, p, models.MsgProductRetrieved)
	}
}

// UpdateProduct handles PUT and PATCH /api/v1/products/:id. Only the
// fields present in the body change.
func UpdateProduct(st ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := productID(c)
		if !ok {
			return
		}
		var req models.ProductUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		if req.Empty() {
			invalidInput(c, errors.New("no fields to update"))
			return
		}
		p, err := st.Update(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		productResponse(c, http.StatusOK, p, models.MsgProductUpdated)
	}
}

// DeleteProduct handles DELETE /api/v1/products/:id.
func DeleteProduct(st ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := productID(c)
		if !ok {
			return
		}
		p, err := st.Delete(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		productResponse(c, http.StatusOK, p, models.MsgProductDeleted)
	}
}

// ExportCSV handles GET /api/v1/export_csv.
func ExportCSV(st ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var buf bytes.Buffer
		if err := st.WriteCSV(c.Request.Context(), &buf, store.MaxLimit); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="products.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}
