// Package archive reads uploaded zip archives and maps their directory
// structure onto gallery folders.
package archive
