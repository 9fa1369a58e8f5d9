package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toggleFavorite(t *testing.T, app *TestApp, token, itemID string, meta map[string]string) map[string]bool {
	t.Helper()
	body, _ := json.Marshal(meta)
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/favorites/%s", app.Server.URL, itemID), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestFavoriteToggle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)
	meta := map[string]string{"title": "The Shawshank Redemption", "year": "1994"}

	// First toggle adds.
	result := toggleFavorite(t, app, token, "tt0111161", meta)
	assert.True(t, result["added"])

	// Second toggle removes; toggling is its own inverse.
	result = toggleFavorite(t, app, token, "tt0111161", meta)
	assert.False(t, result["added"])

	var count int
	require.NoError(t, app.DB.QueryRow("SELECT COUNT(*) FROM favorites WHERE item_id = $1", "tt0111161").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestFavoriteList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)
	_, otherToken := createUserAndToken(t, app.DB)

	toggleFavorite(t, app, token, "tt0111161", map[string]string{"title": "The Shawshank Redemption", "year": "1994"})
	toggleFavorite(t, app, token, "tt0068646", map[string]string{"title": "The Godfather", "year": "1972"})
	toggleFavorite(t, app, otherToken, "tt0137523", map[string]string{"title": "Fight Club", "year": "1999"})

	req, err := http.NewRequest("GET", app.Server.URL+"/api/favorites/", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var favs []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&favs))

	// Only the requesting user's favorites come back.
	require.Len(t, favs, 2)
	ids := []string{favs[0]["item_id"].(string), favs[1]["item_id"].(string)}
	assert.ElementsMatch(t, []string{"tt0111161", "tt0068646"}, ids)
}

func TestFavoriteRemove(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)
	toggleFavorite(t, app, token, "tt0111161", map[string]string{"title": "The Shawshank Redemption"})

	req, err := http.NewRequest("DELETE", app.Server.URL+"/api/favorites/tt0111161", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var count int
	require.NoError(t, app.DB.QueryRow("SELECT COUNT(*) FROM favorites").Scan(&count))
	assert.Equal(t, 0, count)
}
