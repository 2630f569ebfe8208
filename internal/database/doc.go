// Package database persists images, thumbnails and folders in SQLite
// (default, WAL mode) or PostgreSQL.
//
// Orders live on both images.image_order and thumbnails.thumbnail_order.
// Every write that changes an image's order also rewrites its thumbnails'
// order in the same transaction. A NULL image_order marks an image whose
// thumbnails are still being generated.
//
// Writers are serialized by a process-wide mutex. Reads go straight to the
// pool. Missing rows are reported as errors wrapping [ErrNotFound].
package database
