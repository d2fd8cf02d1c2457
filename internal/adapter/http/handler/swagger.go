package handler

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"truek-settlement/pkg/apperror"
	"truek-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// DocsHandler serves the OpenAPI document and a Swagger UI page for it.
type DocsHandler struct {
	spec  []byte
	title string
}

type openAPIHeader struct {
	OpenAPI string `yaml:"openapi"`
	Info    struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	} `yaml:"info"`
}

// NewDocsHandler checks that spec is an OpenAPI 3 document. A nil spec is
// allowed and makes both endpoints answer 404.
func NewDocsHandler(spec []byte) (*DocsHandler, error) {
	h := &DocsHandler{title: "API"}
	if spec == nil {
		return h, nil
	}

	var hdr openAPIHeader
	if err := yaml.Unmarshal(spec, &hdr); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if len(hdr.OpenAPI) < 2 || hdr.OpenAPI[:2] != "3." {
		return nil, fmt.Errorf("openapi document: unsupported version %q", hdr.OpenAPI)
	}
	if hdr.Info.Title == "" {
		return nil, errors.New("openapi document: missing info.title")
	}

	h.spec = spec
	h.title = hdr.Info.Title
	if hdr.Info.Version != "" {
		h.title += " " + hdr.Info.Version
	}
	return h, nil
}

// Spec serves the raw YAML.
func (h *DocsHandler) Spec(c *gin.Context) {
	if h.spec == nil {
		response.Error(c, apperror.ErrNotFound("API document"))
		return
	}
	c.Data(http.StatusOK, "application/yaml", h.spec)
}

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: {{.SpecURL}}, dom_id: '#swagger-ui' });
  </script>
</body>
</html>`))

// UI renders Swagger UI pointed at the Spec route.
func (h *DocsHandler) UI(c *gin.Context) {
	if h.spec == nil {
		response.Error(c, apperror.ErrNotFound("API document"))
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_ = swaggerPage.Execute(c.Writer, struct {
		Title   string
		SpecURL string
	}{h.title, "/swagger/spec"})
}
