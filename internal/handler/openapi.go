package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/reconnoiter/reconnoiter/internal/openapi"
)

// OpenAPIHandler serves the API description as JSON and YAML. The document
// is generated once on first request.
type OpenAPIHandler struct {
	opts openapi.Options
	once sync.Once
	doc  *openapi3.T
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(opts openapi.Options) *OpenAPIHandler {
	return &OpenAPIHandler{opts: opts}
}

func (h *OpenAPIHandler) document() *openapi3.T {
	h.once.Do(func() {
		h.doc = openapi.GenerateAuthSpec(h.opts)
	})
	return h.doc
}

// ServeJSON returns the document as JSON.
// GET /openapi.json
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.document())
}

// ServeYAML returns the document as YAML.
// GET /openapi.yml
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	out, err := toYAML(h.document())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// toYAML converts through JSON so the document's own JSON field names and
// key order are kept.
func toYAML(doc *openapi3.T) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
