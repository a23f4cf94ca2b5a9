// Package openapi provides reflective OpenAPI 3.0 document generation.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document by reflecting on registered routes.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	routes      []Route
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Route describes one HTTP endpoint for documentation.
type Route struct {
	Method      string // GET, POST, ...
	Path        string // chi-style path, e.g. /api/v1/snapshots/{id}
	OperationID string // Unique operation name
	Summary     string // One-line description
	Tag         string // Grouping tag
	Status      int    // Success status code (default 200)
	Response    any    // Response model for schema extraction (nil = no body)
	Query       []QueryParam
}

// QueryParam describes an integer or string query parameter.
type QueryParam struct {
	Name    string
	Type    string // "integer" or "string"
	Default any
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:   "agrotel API",
		version: "1.0.0",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterRoute adds a route to the generator.
func (g *Generator) RegisterRoute(r Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, r)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	spec.Components.Schemas["Error"] = g.extractSchema(errorModel{})

	for _, r := range g.routes {
		g.addRouteToSpec(spec, r)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI document.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// errorModel mirrors the API error body.
type errorModel struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// Path Generation
// =============================================================================

func (g *Generator) addRouteToSpec(spec *openapi3.T, r Route) {
	item := spec.Paths.Value(r.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(r.Path, item)
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	resp := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if r.Response != nil {
		name := schemaName(r.Response)
		if _, ok := spec.Components.Schemas[name]; !ok {
			spec.Components.Schemas[name] = g.extractSchema(r.Response)
		}
		resp = resp.WithJSONSchemaRef(&openapi3.SchemaRef{Ref: "#/components/schemas/" + name})
	}

	errResp := openapi3.NewResponse().
		WithDescription("Error").
		WithJSONSchemaRef(&openapi3.SchemaRef{Ref: "#/components/schemas/Error"})

	op := &openapi3.Operation{
		OperationID: r.OperationID,
		Summary:     r.Summary,
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(status, &openapi3.ResponseRef{Value: resp}),
			openapi3.WithName("default", errResp),
		),
	}
	if r.Tag != "" {
		op.Tags = []string{r.Tag}
	}

	for _, p := range pathParams(r.Path) {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(p).WithSchema(openapi3.NewStringSchema()),
		})
	}
	for _, q := range r.Query {
		schema := openapi3.NewStringSchema()
		if q.Type == "integer" {
			schema = openapi3.NewIntegerSchema()
		}
		schema.Default = q.Default
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(q.Name).WithSchema(schema),
		})
	}

	item.SetOperation(strings.ToUpper(r.Method), op)
}

// pathParams returns the {name} segments of a path, in order.
func pathParams(path string) []string {
	var params []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}"))
		}
	}
	return params
}

// PathsSorted returns the documented paths in lexical order.
func (g *Generator) PathsSorted() []string {
	spec := g.Generate()
	paths := make([]string, 0, spec.Paths.Len())
	for p := range spec.Paths.Map() {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// =============================================================================
// Schema Generation
// =============================================================================

func schemaName(model any) string {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	name := t.Name()
	if reflect.TypeOf(model).Kind() == reflect.Slice {
		name += "List"
	}
	return name
}

// extractSchema extracts an OpenAPI schema from a Go value.
func (g *Generator) extractSchema(model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == reflect.TypeOf(time.Time{}) {
		return g.goTypeToSchema(t)
	}

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
		}

		if propSchema := g.goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(reflect.New(t).Interface())

	default:
		// interface{} and anything else: free-form value
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
}
