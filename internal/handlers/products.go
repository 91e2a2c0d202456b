package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-commerce-assembly/internal/products"
	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// ProductHandler serves the product query interface
type ProductHandler struct {
	products products.Repository
}

// NewProductHandler creates a new product query handler
func NewProductHandler(repo products.Repository) *ProductHandler {
	return &ProductHandler{products: repo}
}

// HandleList handles GET /v1/owners/{ownerID}/products
func (h *ProductHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if ownerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	opts := products.ListOptions{Cursor: r.URL.Query().Get("cursor")}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		opts.Since = &since
	}

	page, err := h.products.GetByOwner(r.Context(), ownerID, opts)
	if err != nil {
		if errors.Is(err, products.ErrInvalidCursor) {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		log.Printf("Failed to list products for owner %s: %v", ownerID, err)
		http.Error(w, fmt.Sprintf("Failed to list products: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// HandleGet handles GET /v1/owners/{ownerID}/products/{contentID}
func (h *ProductHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := assembly.ContentKey{
		OwnerID:   chi.URLParam(r, "ownerID"),
		ContentID: chi.URLParam(r, "contentID"),
	}
	if key.OwnerID == "" || key.ContentID == "" {
		http.Error(w, "owner_id and content_id are required", http.StatusBadRequest)
		return
	}

	product, err := h.products.GetOne(r.Context(), key)
	if err != nil {
		log.Printf("Failed to get product %s: %v", key, err)
		http.Error(w, fmt.Sprintf("Failed to get product: %v", err), http.StatusInternalServerError)
		return
	}
	if product == nil {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// HandleHealth returns health status
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
