// Package httputil centralizes JSON response writing for HTTP handlers.
//
// Handlers go through these helpers rather than raw http.ResponseWriter
// calls so the error envelope and content type stay uniform across the API.
package httputil
