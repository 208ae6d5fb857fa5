package devserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache/internal/api"
	"github.com/nutrilogic/datacache/internal/devserver"
	"github.com/nutrilogic/datacache/keys"
)

func setupServer(t *testing.T) (*devserver.Server, *api.Client) {
	t.Helper()
	srv, err := devserver.New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	_, _, err = srv.Seed(context.Background())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	c, err := api.NewClient(api.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	return srv, c
}

func login(t *testing.T, c *api.Client, email string) *api.Client {
	t.Helper()
	res, err := c.Login(context.Background(), email, "password")
	require.NoError(t, err)
	return c.WithToken(res.Token)
}

func decodeChildren(t *testing.T, raw json.RawMessage) []api.Child {
	t.Helper()
	var env api.Envelope[[]api.Child]
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Data
}

func TestServer_LoginAndAuth(t *testing.T) {
	srv, c := setupServer(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "kader@posyandu.test", "wrong")
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	_, err = c.ListChildren(ctx, keys.RoleKader, keys.ChildFilter{})
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	kader := login(t, c, "kader@posyandu.test")
	_, err = kader.ListChildren(ctx, keys.RoleParent, keys.ChildFilter{})
	assert.True(t, api.IsStatus(err, http.StatusForbidden))

	require.NoError(t, kader.Logout(ctx))
	_, err = kader.DashboardSummary(ctx, keys.RoleKader)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	assert.Equal(t, 2, srv.Hits(devserver.RouteLogin))
	assert.Equal(t, 2, srv.Hits(devserver.RouteListChildren))
}

func TestServer_ListFilters(t *testing.T) {
	_, c := setupServer(t)
	ctx := context.Background()
	kader := login(t, c, "kader@posyandu.test")

	raw, err := kader.ListChildren(ctx, keys.RoleKader, keys.ChildFilter{})
	require.NoError(t, err)
	assert.Len(t, decodeChildren(t, raw), 4)

	raw, err = kader.ListChildren(ctx, keys.RoleKader, keys.ChildFilter{Active: keys.Bool(true)})
	require.NoError(t, err)
	assert.Len(t, decodeChildren(t, raw), 3)

	raw, err = kader.ListChildren(ctx, keys.RoleKader, keys.ChildFilter{Status: "Stunting"})
	require.NoError(t, err)
	got := decodeChildren(t, raw)
	require.Len(t, got, 1)
	assert.Equal(t, "Citra", got[0].Name)

	raw, err = kader.ListChildren(ctx, keys.RoleKader, keys.ChildFilter{Search: "ay"})
	require.NoError(t, err)
	got = decodeChildren(t, raw)
	require.Len(t, got, 1)
	assert.Equal(t, "Bayu", got[0].Name)
}

func TestServer_ParentSeesOwnChildren(t *testing.T) {
	_, c := setupServer(t)
	ctx := context.Background()
	parent := login(t, c, "parent@posyandu.test")

	raw, err := parent.ListChildren(ctx, keys.RoleParent, keys.ChildFilter{})
	require.NoError(t, err)
	got := decodeChildren(t, raw)
	require.Len(t, got, 2)
	assert.Equal(t, "Ani", got[0].Name)
	assert.Equal(t, "Bayu", got[1].Name)

	raw, err = parent.DashboardSummary(ctx, keys.RoleParent)
	require.NoError(t, err)
	var sum api.Envelope[api.DashboardSummary]
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, 2, sum.Data.TotalChildren)
	assert.Equal(t, 1, sum.Data.PriorityCount)

	name := "Eko"
	_, err = parent.CreateChild(ctx, keys.RoleParent, api.ChildInput{Name: &name})
	assert.True(t, api.IsStatus(err, http.StatusForbidden))

	// Citra belongs to another parent.
	kader := login(t, c, "kader@posyandu.test")
	raw, err = kader.ListChildren(ctx, keys.RoleKader, keys.ChildFilter{Status: "stunting"})
	require.NoError(t, err)
	citra := decodeChildren(t, raw)[0]
	_, err = parent.GetChild(ctx, keys.RoleParent, citra.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestServer_ChildLifecycle(t *testing.T) {
	_, c := setupServer(t)
	ctx := context.Background()
	kader := login(t, c, "kader@posyandu.test")

	parentID := int64(2)
	name, gender, birth, status := "Fajar", "l", "2024-02-14", "Gizi_Kurang"
	raw, err := kader.CreateChild(ctx, keys.RoleKader, api.ChildInput{
		ParentID: &parentID, Name: &name, Gender: &gender, BirthDate: &birth, NutritionStatus: &status,
	})
	require.NoError(t, err)
	var created api.Envelope[api.Child]
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.NotZero(t, created.Data.ID)
	assert.Equal(t, "L", created.Data.Gender)
	assert.Equal(t, "gizi_kurang", created.Data.NutritionStatus)
	assert.True(t, created.Data.IsActive)

	raw, err = kader.PriorityChildren(ctx, keys.RoleKader)
	require.NoError(t, err)
	assert.Len(t, decodeChildren(t, raw), 3)

	normal := "normal"
	raw, err = kader.UpdateChild(ctx, keys.RoleKader, created.Data.ID, api.ChildInput{NutritionStatus: &normal})
	require.NoError(t, err)
	var updated api.Envelope[api.Child]
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.Equal(t, "normal", updated.Data.NutritionStatus)
	assert.Equal(t, "Fajar", updated.Data.Name)

	require.NoError(t, kader.DeleteChild(ctx, keys.RoleKader, created.Data.ID))
	_, err = kader.GetChild(ctx, keys.RoleKader, created.Data.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))

	empty := ""
	_, err = kader.CreateChild(ctx, keys.RoleKader, api.ChildInput{Name: &empty})
	assert.True(t, api.IsStatus(err, http.StatusUnprocessableEntity))
}
