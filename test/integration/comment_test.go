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

func postComment(t *testing.T, app *TestApp, token, itemID, body string) map[string]interface{} {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"body": body})
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/movies/%s/comments", app.Server.URL, itemID), bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var comment map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&comment))
	return comment
}

func TestCommentCreateAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)
	itemID := "tt0111161"

	comment := postComment(t, app, token, itemID, "Get busy living, or get busy dying.")
	assert.NotEmpty(t, comment["id"])
	assert.NotEmpty(t, comment["author_name"])

	// Listing is public.
	resp, err := app.Client.Get(fmt.Sprintf("%s/api/movies/%s/comments", app.Server.URL, itemID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var comments []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "Get busy living, or get busy dying.", comments[0]["body"])
}

func TestCommentDelete_OwnerOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, ownerToken := createUserAndToken(t, app.DB)
	_, otherToken := createUserAndToken(t, app.DB)

	comment := postComment(t, app, ownerToken, "tt0111161", "A classic.")
	commentID := comment["id"].(string)

	// Someone else cannot delete it.
	req, err := http.NewRequest("DELETE", app.Server.URL+"/api/comments/"+commentID, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: otherToken})
	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The owner can.
	req, err = http.NewRequest("DELETE", app.Server.URL+"/api/comments/"+commentID, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: ownerToken})
	resp, err = app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting again -> 404.
	req, err = http.NewRequest("DELETE", app.Server.URL+"/api/comments/"+commentID, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: ownerToken})
	resp, err = app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommentValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)

	_, token := createUserAndToken(t, app.DB)

	payload, _ := json.Marshal(map[string]string{"body": "   "})
	req, err := http.NewRequest("POST", app.Server.URL+"/api/movies/tt0111161/comments", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
