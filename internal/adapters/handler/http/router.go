package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	JWTSecret []byte
	Log       zerolog.Logger
}

func NewHandler(
	cfg RouterConfig,
	authHandler *AuthHandler,
	userHandler *UserHandler,
	voteHandler *VoteHandler,
	favoriteHandler *FavoriteHandler,
	commentHandler *CommentHandler,
	catalogHandler *CatalogHandler,
	streamHandler *StreamHandler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Log))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/google/callback", authHandler.GoogleCallback)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/search", catalogHandler.Search)
			r.Get("/movies/{id}", catalogHandler.GetMovie)
		})

		r.Route("/movies/{id}", func(r chi.Router) {
			r.Get("/tally", voteHandler.GetTally)
			r.Get("/comments", commentHandler.ListByItem)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(cfg.JWTSecret))
				r.Post("/vote", voteHandler.CastVote)
				r.Get("/my-vote", voteHandler.GetMyVote)
				r.Post("/comments", commentHandler.Create)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.JWTSecret))
			r.Get("/me", userHandler.GetMe)
			r.Delete("/comments/{commentId}", commentHandler.Delete)

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favoriteHandler.List)
				r.Post("/{id}", favoriteHandler.Toggle)
				r.Delete("/{id}", favoriteHandler.Remove)
			})
		})

		r.With(OptionalAuth(cfg.JWTSecret)).Get("/stream", streamHandler.Serve)
	})

	return r
}
