package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache/internal/api"
	"github.com/nutrilogic/datacache/keys"
)

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := api.NewClient(api.Options{BaseURL: "not a url"})
	assert.Error(t, err)
	_, err = api.NewClient(api.Options{BaseURL: ""})
	assert.Error(t, err)
}

func TestClient_ListChildrenSendsFilterAndToken(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"data":[{"id":1,"name":"Ani"}]}`)
	}))
	defer srv.Close()

	c, err := api.NewClient(api.Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	c = c.WithToken("tok")

	raw, err := c.ListChildren(context.Background(), keys.RoleKader, keys.ChildFilter{Status: " Stunting", Active: keys.Bool(true), Search: " ani "})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":1,"name":"Ani"}]}`, string(raw))
	assert.Equal(t, "/api/kader/children", gotPath)
	assert.Equal(t, "is_active=1&search=ani&status=stunting", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestClient_ErrorResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/kader/children/9":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"child not found"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "boom")
		}
	}))
	defer srv.Close()

	c, err := api.NewClient(api.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.GetChild(context.Background(), keys.RoleKader, 9)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "child not found", apiErr.Message)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))

	err = c.DeleteChild(context.Background(), keys.RoleKader, 1)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestClient_MutationsSendJSON(t *testing.T) {
	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		calls = append(calls, call{r.Method, r.URL.Path, body})
		_, _ = io.WriteString(w, `{"data":{"id":5}}`)
	}))
	defer srv.Close()

	c, err := api.NewClient(api.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	name := "Budi"
	_, err = c.CreateChild(ctx, keys.RoleKader, api.ChildInput{Name: &name})
	require.NoError(t, err)
	weight := 11.5
	_, err = c.UpdateChild(ctx, keys.RoleKader, 5, api.ChildInput{WeightKg: &weight})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/api/kader/children", calls[0].path)
	assert.Equal(t, map[string]any{"name": "Budi"}, calls[0].body)
	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "/api/kader/children/5", calls[1].path)
	assert.Equal(t, map[string]any{"weight_kg": 11.5}, calls[1].body)
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login", r.URL.Path)
		_, _ = io.WriteString(w, `{"token":"abc","user":{"id":2,"name":"Siti","email":"siti@example.com","role":"kader"}}`)
	}))
	defer srv.Close()

	c, err := api.NewClient(api.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	res, err := c.Login(context.Background(), "siti@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Token)
	assert.Equal(t, "kader", res.User.Role)
}
