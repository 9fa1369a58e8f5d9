package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	stdhttp "net/http"

	handler "github.com/reeltally/api/internal/adapters/handler/http"
	repo "github.com/reeltally/api/internal/adapters/repository/postgres"
	"github.com/reeltally/api/internal/core/domain"
	"github.com/reeltally/api/internal/core/ports"
	"github.com/reeltally/api/internal/core/services"
	"github.com/reeltally/api/internal/fanout"
)

const testJWTSecret = "test-secret"

// MockVerifier accepts the literal credential "valid_token" and nothing else.
type MockVerifier struct {
	email string
	name  string
}

func (v *MockVerifier) Verify(ctx context.Context, token string, clientID string) (*ports.TokenPayload, error) {
	if token == "valid_token" {
		return &ports.TokenPayload{Email: v.email, Name: v.name}, nil
	}
	return nil, fmt.Errorf("invalid credential")
}

// stubCatalog keeps catalog routes wired without reaching the external API.
type stubCatalog struct{}

func (c *stubCatalog) Search(ctx context.Context, term string, page int) (*domain.MovieSearchResult, error) {
	return &domain.MovieSearchResult{
		Movies: []domain.Movie{{ImdbID: "tt0111161", Title: "The Shawshank Redemption", Year: "1994"}},
		Total:  1,
		Page:   page,
	}, nil
}

func (c *stubCatalog) ByID(ctx context.Context, imdbID string) (*domain.Movie, error) {
	if imdbID != "tt0111161" {
		return nil, domain.ErrMovieNotFound
	}
	return &domain.Movie{ImdbID: imdbID, Title: "The Shawshank Redemption", Year: "1994"}, nil
}

type TestApp struct {
	DB          *sql.DB
	Server      *httptest.Server
	Client      *stdhttp.Client
	Subs        ports.Subscriptions
	DBContainer testcontainers.Container

	cancel context.CancelFunc
}

func (app *TestApp) Teardown(t *testing.T) {
	t.Helper()
	app.Server.Close()
	app.cancel()
	app.DB.Close()
	if err := app.DBContainer.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate container: %v", err)
	}
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	dbName := "testdb"
	user := "user"
	password := "password"

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

// setupTestApp builds the whole application against a throwaway database,
// including the notification listener and fan-out manager, so tests exercise
// the same wiring the server binary runs.
func setupTestApp(t *testing.T) *TestApp {
	t.Helper()
	t.Setenv("JWT_SECRET", testJWTSecret)

	ctx := context.Background()
	dbContainer, connStr, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, applyMigrations(db))

	log := zerolog.Nop()

	userRepo := repo.NewUserRepository(db)
	authRepo := repo.NewAuthRepository(db)
	tallyRepo := repo.NewTallyRepository(db, log)
	favoriteRepo := repo.NewFavoriteRepository(db)
	commentRepo := repo.NewCommentRepository(db)

	appCtx, cancel := context.WithCancel(context.Background())

	listener := repo.NewListener(connStr, log)
	manager := fanout.NewManager(listener, tallyRepo, log)
	require.NoError(t, manager.Start(appCtx))

	authSvc := services.NewAuthService(userRepo, authRepo, &MockVerifier{email: "test@example.com", name: "Test User"}, log)
	userSvc := services.NewUserService(userRepo)
	voteSvc := services.NewVoteService(tallyRepo, log)
	favoriteSvc := services.NewFavoriteService(favoriteRepo)
	commentSvc := services.NewCommentService(commentRepo, userRepo)

	authHandler := handler.NewAuthHandler(authSvc, manager, "https://example.com/redirect", "", stdhttp.SameSiteLaxMode)
	userHandler := handler.NewUserHandler(userSvc)
	voteHandler := handler.NewVoteHandler(voteSvc)
	favoriteHandler := handler.NewFavoriteHandler(favoriteSvc)
	commentHandler := handler.NewCommentHandler(commentSvc)
	catalogHandler := handler.NewCatalogHandler(&stubCatalog{})
	streamHandler := handler.NewStreamHandler(manager, voteSvc, log)

	router := handler.NewHandler(
		handler.RouterConfig{JWTSecret: []byte(testJWTSecret), Log: log},
		authHandler,
		userHandler,
		voteHandler,
		favoriteHandler,
		commentHandler,
		catalogHandler,
		streamHandler,
	)

	server := httptest.NewServer(router)

	return &TestApp{
		DB:          db,
		Server:      server,
		Client:      server.Client(),
		Subs:        manager,
		DBContainer: dbContainer,
		cancel:      cancel,
	}
}

func applyMigrations(db *sql.DB) error {
	dirPath := "../../internal/adapters/repository/postgres/migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		content, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		_, err = db.Exec(string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func createUserAndToken(t *testing.T, db *sql.DB) (uuid.UUID, string) {
	t.Helper()

	userID := uuid.New()
	email := fmt.Sprintf("user-%s@example.com", userID)
	name := fmt.Sprintf("User %s", userID)
	_, err := db.Exec("INSERT INTO users (id, email, name) VALUES ($1, $2, $3)", userID, email, name)
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"exp":   time.Now().Add(15 * time.Minute).Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return userID, signedToken
}
