// Package normalisers turns fetched documents into text blocks. Each
// sub-package handles one content kind; Registry dispatches between them.
package normalisers
