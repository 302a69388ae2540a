// Package api carries the OpenAPI description of the HTTP surface so that
// binaries serve it without depending on their working directory.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
