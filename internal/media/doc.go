// Package media turns uploaded image bytes into tiered JPEG thumbnails.
//
// Three backends implement [Resizer]: imaging (pure Go, default), vips
// (libvips via govips, decode-time shrinking) and nfnt (pure Go, no EXIF
// handling). Decoding failures wrap [ErrUnsupportedFormat].
package media
