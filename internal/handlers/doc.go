// Package handlers provides HTTP request handlers for the clipvault API.
//
// It includes handlers for:
//   - Resource, author, and tag browsing (filtered, paginated, grouped)
//   - Media streaming and thumbnail generation
//   - Reindex control and progress streaming
//   - Health checks and build version info
package handlers
