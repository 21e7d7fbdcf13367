// Package file provides an on-disk page cache.
//
// Each source gets its own directory. An identifier is stored as two
// files named after the hex sha256 of the identifier: <hash>.json holds
// the domain.CacheEntry and <hash>.body holds the raw content.
package file
