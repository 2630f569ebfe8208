// Command gallery-admin runs maintenance tasks against the gallery database
// while the server is stopped.
//
// Usage:
//
//	gallery-admin <command> [args]
//
// Commands:
//
//	stats              Print image, pending image, folder and per-tier
//	                   thumbnail counts.
//
//	recount [id|all]   Renumber the display order of one folder, or of the
//	                   root and every folder, to 0..n-1. "all" asks for
//	                   confirmation when stdin is a terminal.
//
//	regenerate         Create the thumbnails of every image missing a tier.
//	                   Images that cannot be decoded are removed.
//
// Environment:
//
//	DATABASE_DIR, DATABASE_DRIVER, DATABASE_URL, RESIZE_BACKEND
package main
