package ports

import (
	"context"

	"github.com/reeltally/api/internal/core/domain"
)

// Catalog is the external movie catalog. It supplies item ids and display
// metadata only; engagement state never depends on it.
type Catalog interface {
	Search(ctx context.Context, term string, page int) (*domain.MovieSearchResult, error)
	ByID(ctx context.Context, imdbID string) (*domain.Movie, error)
}
