package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
)

// CatalogHandler proxies the external catalog so the API key never reaches
// the browser.
type CatalogHandler struct {
	catalog ports.Catalog
}

func NewCatalogHandler(catalog ports.Catalog) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
	}
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "missing search term", http.StatusBadRequest)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := h.catalog.Search(r.Context(), term, page)
	if err != nil {
		if errors.Is(err, domain.ErrMovieNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *CatalogHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	imdbID := chi.URLParam(r, "id")
	if imdbID == "" {
		http.Error(w, "missing movie id", http.StatusBadRequest)
		return
	}

	movie, err := h.catalog.ByID(r.Context(), imdbID)
	if err != nil {
		if errors.Is(err, domain.ErrMovieNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(movie)
}
