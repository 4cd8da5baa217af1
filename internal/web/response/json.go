package response

import (
	"encoding/json"
	"net/http"
)

// PageMeta describes the slice of a collection returned by a list endpoint
type PageMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Page is the envelope for paginated collections
type Page struct {
	Data interface{} `json:"data"`
	Meta PageMeta    `json:"meta"`
}

// NewPageMeta computes page metadata for total items
func NewPageMeta(page, perPage, total int) PageMeta {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return PageMeta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// RenderJSON writes v as JSON with the given status code
func RenderJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// RenderPage writes a paginated collection
func RenderPage(w http.ResponseWriter, data interface{}, meta PageMeta) {
	RenderJSON(w, http.StatusOK, &Page{Data: data, Meta: meta})
}

// RenderNoContent writes an empty 204 response
func RenderNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
