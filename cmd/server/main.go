package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/reeltally/api/internal/adapters/catalog/omdb"
	"github.com/reeltally/api/internal/adapters/handler/http"
	"github.com/reeltally/api/internal/adapters/oauth/google"
	"github.com/reeltally/api/internal/adapters/repository/postgres"
	"github.com/reeltally/api/internal/core/services"
	"github.com/reeltally/api/internal/fanout"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found")
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("LOG_LEVEL") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	connStr := dbConnString()
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to reach database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	authRepo := postgres.NewAuthRepository(db)
	tallyRepo := postgres.NewTallyRepository(db, log)
	favoriteRepo := postgres.NewFavoriteRepository(db)
	commentRepo := postgres.NewCommentRepository(db)

	// Change stream and fan-out
	listener := postgres.NewListener(connStr, log)
	manager := fanout.NewManager(listener, tallyRepo, log)
	if err := manager.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start change stream")
	}

	// Services
	verifier := google.NewVerifier(log)
	authService := services.NewAuthService(userRepo, authRepo, verifier, log)
	userService := services.NewUserService(userRepo)
	voteService := services.NewVoteService(tallyRepo, log)
	favoriteService := services.NewFavoriteService(favoriteRepo)
	commentService := services.NewCommentService(commentRepo, userRepo)
	catalog := omdb.NewClient(omdbBaseURL(), os.Getenv("OMDB_API_KEY"))

	// Handlers
	authHandler := http.NewAuthHandler(authService, manager, os.Getenv("AUTH_REDIRECT_URL"), os.Getenv("COOKIE_DOMAIN"), stdhttp.SameSiteLaxMode)
	userHandler := http.NewUserHandler(userService)
	voteHandler := http.NewVoteHandler(voteService)
	favoriteHandler := http.NewFavoriteHandler(favoriteService)
	commentHandler := http.NewCommentHandler(commentService)
	catalogHandler := http.NewCatalogHandler(catalog)
	streamHandler := http.NewStreamHandler(manager, voteService, log)

	handler := http.NewHandler(
		http.RouterConfig{JWTSecret: []byte(os.Getenv("JWT_SECRET")), Log: log},
		authHandler,
		userHandler,
		voteHandler,
		favoriteHandler,
		commentHandler,
		catalogHandler,
		streamHandler,
	)

	server := &stdhttp.Server{Addr: "0.0.0.0:8080", Handler: handler}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("gracefully shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("shutdown failed")
	}
}

func omdbBaseURL() string {
	if url := os.Getenv("OMDB_BASE_URL"); url != "" {
		return url
	}
	return "https://www.omdbapi.com/"
}

func dbConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("POSTGRES_HOST"),
		os.Getenv("POSTGRES_PORT"),
		os.Getenv("POSTGRES_DB"),
	)
}
