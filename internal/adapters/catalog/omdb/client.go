package omdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reeltally/api/internal/core/domain"
)

const pageSize = 10

// Client queries the OMDb HTTP API. OMDb reports errors inside a 200
// response ("Response": "False"), so status codes alone are not enough.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type searchEnvelope struct {
	Response     string        `json:"Response"`
	Error        string        `json:"Error"`
	TotalResults string        `json:"totalResults"`
	Search       []searchEntry `json:"Search"`
}

type searchEntry struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	ImdbID string `json:"imdbID"`
	Poster string `json:"Poster"`
}

type movieEnvelope struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	ImdbID   string `json:"imdbID"`
	Poster   string `json:"Poster"`
	Plot     string `json:"Plot"`
	Genre    string `json:"Genre"`
	Rated    string `json:"Rated"`
}

func (c *Client) Search(ctx context.Context, term string, page int) (*domain.MovieSearchResult, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("s", term)
	params.Set("type", "movie")
	params.Set("page", strconv.Itoa(page))

	var envelope searchEnvelope
	if err := c.get(ctx, params, &envelope); err != nil {
		return nil, err
	}
	if envelope.Response != "True" {
		if strings.Contains(strings.ToLower(envelope.Error), "not found") {
			return nil, domain.ErrMovieNotFound
		}
		return nil, fmt.Errorf("catalog search failed: %s", envelope.Error)
	}

	total, _ := strconv.Atoi(envelope.TotalResults)
	movies := make([]domain.Movie, 0, len(envelope.Search))
	for _, entry := range envelope.Search {
		movies = append(movies, domain.Movie{
			ImdbID: entry.ImdbID,
			Title:  entry.Title,
			Year:   entry.Year,
			Poster: entry.Poster,
		})
	}

	return &domain.MovieSearchResult{
		Movies:  movies,
		Total:   total,
		Page:    page,
		HasMore: page*pageSize < total,
	}, nil
}

func (c *Client) ByID(ctx context.Context, imdbID string) (*domain.Movie, error) {
	params := url.Values{}
	params.Set("i", imdbID)
	params.Set("plot", "short")

	var envelope movieEnvelope
	if err := c.get(ctx, params, &envelope); err != nil {
		return nil, err
	}
	if envelope.Response != "True" {
		return nil, domain.ErrMovieNotFound
	}

	return &domain.Movie{
		ImdbID: envelope.ImdbID,
		Title:  envelope.Title,
		Year:   envelope.Year,
		Poster: envelope.Poster,
		Plot:   envelope.Plot,
		Genre:  envelope.Genre,
		Rated:  envelope.Rated,
	}, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out interface{}) error {
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}
