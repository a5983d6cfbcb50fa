// Package updates is the HTTP surface of the updates server: it negotiates
// the update protocol, packages manifests and directives into multipart
// responses and serves the assets those manifests reference.
package updates
