// Package cache provides the local cache capability consumed by the
// directory core.
//
// Store is a thin interface over named local files with independent
// read/write cursors; FS is the filesystem implementation. The cache holds
// one file per storage key containing the decompressed logical content.
// There is no manifest: freshness is inferred by the caller purely from
// length and timestamp comparison against remote metadata.
package cache
