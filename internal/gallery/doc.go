// Package gallery executes client requests: uploads, paging, image fetches,
// moves and deletions. It keeps folder orders dense through the ordering
// service and reports every change to connected sessions.
package gallery
