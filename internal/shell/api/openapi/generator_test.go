package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID        string         `json:"id"`
	Count     int            `json:"count"`
	Weight    *float64       `json:"weight"`
	CreatedAt time.Time      `json:"created_at"`
	Labels    map[string]any `json:"labels"`
	internal  string
	Skipped   string `json:"-"`
}

type widgetMap map[string]any

func newTestGenerator() *Generator {
	g := NewGenerator(WithTitle("Test API"), WithVersion("9.9.9"), WithServer("/"))
	g.RegisterRoute(Route{
		Method:      "get",
		Path:        "/api/v1/widgets/{id}",
		OperationID: "getWidget",
		Summary:     "Get a widget",
		Tag:         "Widgets",
		Response:    widget{},
	})
	g.RegisterRoute(Route{
		Method:      http.MethodGet,
		Path:        "/api/v1/widgets",
		OperationID: "listWidgets",
		Response:    []widget{},
		Query:       []QueryParam{{Name: "limit", Type: "integer", Default: 100}},
	})
	g.RegisterRoute(Route{
		Method:      http.MethodPost,
		Path:        "/api/v1/widgets/refresh",
		OperationID: "refreshWidgets",
		Status:      http.StatusCreated,
		Response:    widgetMap{},
	})
	return g
}

func TestGenerate_Info(t *testing.T) {
	spec := newTestGenerator().Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Test API", spec.Info.Title)
	assert.Equal(t, "9.9.9", spec.Info.Version)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "/", spec.Servers[0].URL)
}

func TestGenerate_Paths(t *testing.T) {
	g := newTestGenerator()
	assert.Equal(t, []string{
		"/api/v1/widgets",
		"/api/v1/widgets/refresh",
		"/api/v1/widgets/{id}",
	}, g.PathsSorted())

	spec := g.Generate()
	item := spec.Paths.Value("/api/v1/widgets/{id}")
	require.NotNil(t, item)
	require.NotNil(t, item.Get)
	assert.Equal(t, "getWidget", item.Get.OperationID)
	assert.Equal(t, []string{"Widgets"}, item.Get.Tags)
	require.Len(t, item.Get.Parameters, 1)
	assert.Equal(t, "id", item.Get.Parameters[0].Value.Name)
	assert.Equal(t, "path", item.Get.Parameters[0].Value.In)
	assert.NotNil(t, item.Get.Responses.Status(http.StatusOK))

	refresh := spec.Paths.Value("/api/v1/widgets/refresh")
	require.NotNil(t, refresh.Post)
	assert.NotNil(t, refresh.Post.Responses.Status(http.StatusCreated))

	list := spec.Paths.Value("/api/v1/widgets")
	require.Len(t, list.Get.Parameters, 1)
	assert.Equal(t, "limit", list.Get.Parameters[0].Value.Name)
	assert.Equal(t, 100, list.Get.Parameters[0].Value.Schema.Value.Default)
}

func TestGenerate_Schemas(t *testing.T) {
	spec := newTestGenerator().Generate()

	w, ok := spec.Components.Schemas["widget"]
	require.True(t, ok)
	props := w.Value.Properties
	assert.Contains(t, props, "id")
	assert.Contains(t, props, "count")
	assert.True(t, props["weight"].Value.Nullable)
	assert.Equal(t, "date-time", props["created_at"].Value.Format)
	assert.NotContains(t, props, "internal")
	assert.NotContains(t, props, "Skipped")

	list, ok := spec.Components.Schemas["widgetList"]
	require.True(t, ok)
	assert.True(t, list.Value.Type.Is("array"))

	m, ok := spec.Components.Schemas["widgetMap"]
	require.True(t, ok)
	assert.True(t, m.Value.Type.Is("object"))

	assert.Contains(t, spec.Components.Schemas, "Error")
}

func TestGenerate_CachedUntilRegistration(t *testing.T) {
	g := newTestGenerator()
	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.RegisterRoute(Route{Method: http.MethodGet, Path: "/health", OperationID: "health"})
	second := g.Generate()
	assert.NotSame(t, first, second)
	assert.NotNil(t, second.Paths.Value("/health"))
}

func TestHandler_ServesJSON(t *testing.T) {
	g := newTestGenerator()

	rec := httptest.NewRecorder()
	g.Handler()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/widgets/{id}")
}
