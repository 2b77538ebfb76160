// Package api holds the OpenAPI document for the HTTP surface.
package api

import _ "embed"

//go:embed openapi3.yml
var OpenAPI []byte
