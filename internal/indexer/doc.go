// Package indexer walks configured media directories, parses each entry's
// filename through the grammar parser, and reconciles the result into the
// index store. A single-flight gate ensures at most one scan runs at a
// time; triggers received mid-scan are coalesced into one more run rather
// than queued.
package indexer
