package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Options describe the deployment the document is generated for.
type Options struct {
	BaseURL       string
	SessionHeader string
	Version       string
}

// GenerateAuthSpec builds the OpenAPI 3.1 document for the authentication
// and administration endpoints.
func GenerateAuthSpec(opts Options) *openapi3.T {
	if opts.SessionHeader == "" {
		opts.SessionHeader = "X-User-Token"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Reconnoiter API",
			Description: "Service credential and GitHub session authentication for the Reconnoiter API.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["serviceKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "http",
			Scheme:      "bearer",
			Description: "Service credential issued with `reconnoiter key generate`.",
		},
	}
	doc.Components.SecuritySchemes["userToken"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        opts.SessionHeader,
			Description: "Session token returned by the token exchange. Only accepted together with a service credential.",
		},
	}

	addSchemas(doc)

	doc.Paths = openapi3.NewPaths()
	serviceOnly := &openapi3.SecurityRequirements{{"serviceKey": {}}}
	serviceAndUser := &openapi3.SecurityRequirements{{"serviceKey": {}, "userToken": {}}}

	doc.Paths.Set("/api/v1/auth/exchange", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Exchange a GitHub access token for a session token",
			OperationID: "exchangeToken",
			Security:    serviceOnly,
			RequestBody: &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().
					WithRequired(true).
					WithJSONSchemaRef(ref("ExchangeRequest")),
			},
			Responses: responses(
				"200", "Session issued", ref("ExchangeResponse"),
				map[string]string{
					"400": "MessageResponse",
					"401": "MessageResponse",
					"403": "MessageResponse",
				},
			),
		},
	})

	doc.Paths.Set("/api/v1/profile", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"profile"},
			Summary:     "Current user profile",
			OperationID: "getProfile",
			Security:    serviceAndUser,
			Responses:   responses("200", "The authenticated user", ref("User"), chainErrors()),
		},
	})

	adminErrors := chainErrors()
	adminErrors["403"] = "AuthErrorResponse"

	doc.Paths.Set("/api/v1/admin/api-keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "List service credentials",
			OperationID: "listApiKeys",
			Security:    serviceAndUser,
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewQueryParameter("include_revoked").
					WithDescription("Include revoked credentials.").
					WithSchema(openapi3.NewBoolSchema())},
			},
			Responses: responses("200", "Credentials, newest first", ref("ApiKeyList"), adminErrors),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Issue a service credential",
			Description: "The raw secret is returned once and never stored.",
			OperationID: "createApiKey",
			Security:    serviceAndUser,
			RequestBody: &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().
					WithRequired(true).
					WithJSONSchemaRef(ref("CreateApiKeyRequest")),
			},
			Responses: responses("201", "Issued credential", ref("CreateApiKeyResponse"), adminErrors),
		},
	})

	doc.Paths.Set("/api/v1/admin/api-keys/{id}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Revoke a service credential",
			OperationID: "revokeApiKey",
			Security:    serviceAndUser,
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewInt64Schema())},
			},
			Responses: responses("200", "Revoked", ref("MessageResponse"), withNotFound(adminErrors)),
		},
	})

	doc.Paths.Set("/api/v1/admin/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Credential and user statistics",
			OperationID: "getStats",
			Security:    serviceAndUser,
			Responses:   responses("200", "Statistics", ref("Stats"), adminErrors),
		},
	})

	noAuth := &openapi3.SecurityRequirements{}
	doc.Paths.Set("/oauth2/authorization/github", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Start the GitHub browser login",
			OperationID: "startGithubLogin",
			Security:    noAuth,
			Responses:   redirect("Redirect to GitHub"),
		},
	})
	doc.Paths.Set("/login/oauth2/code/github", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "GitHub login callback",
			Description: "Redirects to the frontend with either a session token or an error code.",
			OperationID: "githubCallback",
			Security:    noAuth,
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewQueryParameter("code").WithSchema(openapi3.NewStringSchema())},
				{Value: openapi3.NewQueryParameter("state").WithSchema(openapi3.NewStringSchema())},
			},
			Responses: redirect("Redirect to the frontend"),
		},
	})

	return doc
}

func addSchemas(doc *openapi3.T) {
	s := doc.Components.Schemas
	str := openapi3.NewStringSchema
	i64 := openapi3.NewInt64Schema

	s["AuthErrorResponse"] = object(map[string]*openapi3.Schema{
		"error":     str(),
		"message":   str(),
		"errorCode": str().WithEnum(
			"MALFORMED_HEADER", "EMPTY_API_KEY", "INVALID_API_KEY", "MISSING_API_KEY",
			"MALFORMED_TOKEN", "TOKEN_EXPIRED", "INVALID_SIGNATURE", "USER_NOT_FOUND",
			"AUTHENTICATION_REQUIRED", "FORBIDDEN", "INTERNAL_ERROR",
		),
		"timestamp": str().WithFormat("date-time"),
	}, "error", "message", "errorCode", "timestamp")

	s["MessageResponse"] = object(map[string]*openapi3.Schema{
		"message": str(),
		"errors":  openapi3.NewArraySchema().WithItems(str()),
	}, "message")

	s["ExchangeRequest"] = object(map[string]*openapi3.Schema{
		"github_token": str().WithMinLength(1),
	}, "github_token")

	s["User"] = object(map[string]*openapi3.Schema{
		"id":              i64(),
		"github_id":       i64(),
		"github_username": str(),
		"email":           str(),
		"avatar_url":      str(),
		"name":            str(),
		"admin":           openapi3.NewBoolSchema(),
	}, "id", "email", "admin")

	s["ExchangeResponse"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:     &openapi3.Types{"object"},
		Required: []string{"jwt", "user"},
		Properties: openapi3.Schemas{
			"jwt":  openapi3.NewSchemaRef("", str()),
			"user": ref("User"),
		},
	}}

	apiKey := object(map[string]*openapi3.Schema{
		"id":            i64(),
		"name":          str(),
		"prefix":        str().WithLength(8),
		"owner_user_id": i64(),
		"request_count": i64(),
		"last_used_at":  str().WithFormat("date-time"),
		"revoked_at":    str().WithFormat("date-time"),
		"created_at":    str().WithFormat("date-time"),
		"updated_at":    str().WithFormat("date-time"),
	}, "id", "name", "prefix", "request_count", "created_at")
	s["ApiKey"] = apiKey

	s["ApiKeyList"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"resource": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: ref("ApiKey"),
			}},
			"count": openapi3.NewSchemaRef("", openapi3.NewIntegerSchema()),
		},
	}}

	s["CreateApiKeyRequest"] = object(map[string]*openapi3.Schema{
		"name":          str().WithMinLength(1),
		"owner_user_id": i64(),
	}, "name")

	s["CreateApiKeyResponse"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:     &openapi3.Types{"object"},
		Required: []string{"api_key", "credential"},
		Properties: openapi3.Schemas{
			"api_key":    openapi3.NewSchemaRef("", str().WithLength(32)),
			"credential": ref("ApiKey"),
		},
	}}

	s["Stats"] = object(map[string]*openapi3.Schema{
		"total_api_keys":   i64(),
		"active_api_keys":  i64(),
		"revoked_api_keys": i64(),
		"users":            i64(),
		"admins":           i64(),
		"allow_listed":     i64(),
	}, "total_api_keys", "active_api_keys", "revoked_api_keys")
}

// ─── Builders ───────────────────────────────────────────────────────────────

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func object(props map[string]*openapi3.Schema, required ...string) *openapi3.SchemaRef {
	schema := openapi3.NewObjectSchema()
	for name, p := range props {
		schema.WithProperty(name, p)
	}
	schema.Required = required
	return openapi3.NewSchemaRef("", schema)
}

// chainErrors lists the rejections the authentication chain can produce.
func chainErrors() map[string]string {
	return map[string]string{
		"400": "AuthErrorResponse",
		"401": "AuthErrorResponse",
		"500": "AuthErrorResponse",
	}
}

func withNotFound(errs map[string]string) map[string]string {
	out := make(map[string]string, len(errs)+1)
	for k, v := range errs {
		out[k] = v
	}
	out["404"] = "MessageResponse"
	return out
}

// responses builds a success response plus one entry per error status.
func responses(status, description string, schema *openapi3.SchemaRef, errs map[string]string) *openapi3.Responses {
	out := openapi3.NewResponses()
	out.Delete("default")

	desc := description
	out.Set(status, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	for code, schemaName := range errs {
		d := statusDescription(code)
		out.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(ref(schemaName)),
			},
		})
	}
	return out
}

func redirect(description string) *openapi3.Responses {
	out := openapi3.NewResponses()
	out.Delete("default")
	desc := description
	out.Set("302", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Headers: openapi3.Headers{
				"Location": &openapi3.HeaderRef{Value: &openapi3.Header{
					Parameter: openapi3.Parameter{Schema: openapi3.NewSchemaRef("", openapi3.NewStringSchema())},
				}},
			},
		},
	})
	return out
}

func statusDescription(code string) string {
	switch code {
	case "400":
		return "Bad request"
	case "401":
		return "Unauthorized"
	case "403":
		return "Forbidden"
	case "404":
		return "Not found"
	default:
		return "Internal server error"
	}
}
