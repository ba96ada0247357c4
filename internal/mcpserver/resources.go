package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fugue-ai/rhema/internal/rerrors"
	"github.com/fugue-ai/rhema/internal/store"
)

// resourceScheme is the URI scheme every context document is addressed
// under: rhema://scope/<name>/<doc> (§4.G).
const resourceScheme = "rhema"

// ResourceDescriptor is one entry in resources/list.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type"`
}

// ResourceContent is resources/read's per-URI result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text"`
}

// resourceURI builds the rhema://scope/<name>/<doc> URI for one document.
func resourceURI(scope string, kind store.Kind) string {
	return fmt.Sprintf("%s://scope/%s/%s", resourceScheme, scope, kind)
}

// parseResourceURI reverses resourceURI, returning the scope name and
// document kind it addresses.
func parseResourceURI(uri string) (scope string, kind store.Kind, err error) {
	prefix := resourceScheme + "://scope/"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", rerrors.New(rerrors.CodeSchemaViolation, "unsupported resource uri scheme").WithDetails("uri", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", rerrors.New(rerrors.CodeSchemaViolation, "malformed resource uri").WithDetails("uri", uri)
	}
	return parts[0], store.Kind(parts[1]), nil
}

// ListResources implements resources/list: every document kind present on
// disk for every known scope, or for scopeFilter alone when non-empty.
func (s *Server) ListResources(ctx context.Context, scopeFilter string) ([]ResourceDescriptor, error) {
	scopes := []string{scopeFilter}
	if scopeFilter == "" {
		all, err := s.store.ListAllScopes(ctx, s.knownScopes())
		if err != nil {
			return nil, err
		}
		scopes = all
	}

	var out []ResourceDescriptor
	for _, scope := range scopes {
		kinds, err := s.store.List(ctx, scope)
		if err != nil {
			return nil, err
		}
		for _, kind := range kinds {
			out = append(out, ResourceDescriptor{
				URI:         resourceURI(scope, kind),
				Name:        fmt.Sprintf("%s/%s", scope, kind),
				Description: fmt.Sprintf("%s document for scope %s", kind, scope),
				MimeType:    "application/json",
			})
		}
	}
	return out, nil
}

// ReadResource implements resources/read: loads the document a
// rhema://scope/<name>/<doc> URI addresses and serializes it as JSON text,
// the wire shape every MCP client expects regardless of the on-disk YAML.
func (s *Server) ReadResource(ctx context.Context, uri string) (ResourceContent, error) {
	scope, kind, err := parseResourceURI(uri)
	if err != nil {
		return ResourceContent{}, err
	}

	doc, err := s.store.Load(ctx, scope, kind)
	if err != nil {
		return ResourceContent{}, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return ResourceContent{}, rerrors.Wrap(rerrors.CodeInternal, "failed to serialize resource", err)
	}

	return ResourceContent{URI: uri, MimeType: "application/json", Text: string(data)}, nil
}
