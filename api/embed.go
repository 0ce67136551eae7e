// Package api holds the OpenAPI description of the helipad HTTP API.
package api

import _ "embed"

// OpenAPISpec is served at /openapi.yaml and drives request validation.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
