package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/samirrijal/geofield/api"
)

func readOpenAPI(t *testing.T) string {
	t.Helper()
	if len(api.OpenAPI) == 0 {
		t.Fatal("embedded openapi.yaml is empty")
	}
	return string(api.OpenAPI)
}

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData([]byte(readOpenAPI(t)))
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}
	return spec
}

func TestOpenAPIDocument(t *testing.T) {
	spec := loadOpenAPI(t)
	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI validation failed: %v", err)
	}

	if spec.Info.Title != "geofield Map API" || spec.Info.Version != "1.0.0" {
		t.Errorf("unexpected info %s v%s", spec.Info.Title, spec.Info.Version)
	}
	if len(spec.Servers) == 0 {
		t.Error("expected at least one server")
	}

	for _, path := range []string{
		"/v1/health", "/v1/ready", "/v1/maps/render",
		"/v1/themers", "/v1/themers/presets", "/v1/themers/{id}", "/v1/themers/{id}/legend",
		"/v1/geocode/forward", "/v1/geocode/reverse", "/graphql",
	} {
		if spec.Paths.Find(path) == nil {
			t.Errorf("path %s not documented", path)
		}
	}
}

// validateBody checks a JSON response body against a component schema.
func validateBody(t *testing.T, spec *openapi3.T, schema string, body []byte) {
	t.Helper()
	ref := spec.Components.Schemas[schema]
	if ref == nil {
		t.Fatalf("schema %s not found", schema)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if err := ref.Value.VisitJSON(v); err != nil {
		t.Errorf("%s does not match its schema: %v\n%s", schema, err, body)
	}
}

func TestResponsesMatchSchemas(t *testing.T) {
	spec := loadOpenAPI(t)
	app := setupApp(makeDeps())

	status, body := doJSON(t, app, "POST", "/v1/maps/render", `{"config":{"map_id":"m"},"features":`+twoPoints+`}`)
	if status != 200 {
		t.Fatalf("render: expected 200, got %d", status)
	}
	validateBody(t, spec, "RenderResult", body)

	status, body = doJSON(t, app, "POST", "/v1/maps/render", `{"config":{"map_id":"m","library":"bing"}}`)
	if status != 400 {
		t.Fatalf("render: expected 400, got %d", status)
	}
	validateBody(t, spec, "APIError", body)

	status, body = doJSON(t, app, "GET", "/v1/themers/numeric_interval", "")
	if status != 200 {
		t.Fatalf("themer: expected 200, got %d", status)
	}
	validateBody(t, spec, "ThemerDefinition", body)

	legend := `{"settings":{"field":"kind","values":[{"key":"a","icon":"a.png","weight":2}]}}`
	status, body = doJSON(t, app, "POST", "/v1/themers/property_value/legend", legend)
	if status != 200 {
		t.Fatalf("legend: expected 200, got %d", status)
	}
	validateBody(t, spec, "LegendTable", body)
}

func TestDocsRoutes(t *testing.T) {
	app := setupApp(makeDeps())

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("openapi.json is not JSON: %v", err)
	}
	if doc.Info.Title != "geofield Map API" || doc.Paths["/v1/maps/render"] == nil {
		t.Errorf("unexpected document %s", body[:min(len(body), 200)])
	}

	for _, path := range []string{"/docs", "/docs/openapi.yaml"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 200 {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
