// Package session keeps the per-connection view state (folder, thumbnail
// tier and page) used to route notifications. State is in memory only and
// is lost when a connection closes.
package session
