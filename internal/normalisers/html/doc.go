// Package html extracts documentation text from HTML pages. An ordered
// chain of strategies locates the main content, which is converted to
// markdown and split into heading-scoped blocks.
package html
