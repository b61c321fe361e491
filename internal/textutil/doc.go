// Package textutil provides text comparison and filename helpers.
//
// Similarity blends two measures: word overlap, which ignores order, and a
// Ratcliff/Obershelp sequence ratio over runes, which rewards shared order.
// The dub quality gate compares a back-translation against the source
// transcript with their mean.
package textutil
