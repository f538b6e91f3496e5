// Package templates provides the embedded default catalog and the file
// templates written by the builtin tasks.
package templates

import "embed"

// Catalog is the default task catalog, installed to $KICKOFF_HOME by init
// when no catalog exists yet.
//
//go:embed catalog.yaml
var Catalog []byte

// Files contains the templates used by builtin tasks. Files ending in
// .tmpl are rendered with text/template.
//
//go:embed files
var Files embed.FS
