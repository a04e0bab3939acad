// Package blobdir presents a remote, network-accessed blob container as a
// conventional hierarchical file store.
//
// A Directory transparently maintains a local on-disk cache of every file
// it reads or writes, optionally compresses stored content, and offers a
// distributed mutual-exclusion lock built on short-lived leases.
//
// # Quick Start
//
//	ctx := context.Background()
//	dir, _ := blobdir.Open(ctx, "myaccount", accountKey,
//		blobdir.WithContainer("myindex"),
//		blobdir.WithCompression(true),
//	)
//
//	out, _ := dir.CreateOutput(ctx, "segments.gen")
//	out.Write(data)
//	out.Close() // publishes content + logical metadata
//
//	in, _ := dir.OpenInput(ctx, "segments.gen") // cache hit or download
//	defer in.Close()
//
//	lock := dir.MakeLock("write.lock")
//	if err := lock.Obtain(ctx); err != nil { ... }
//	defer lock.Release(ctx)
//
// # Caching
//
// A cache entry is considered fresh when its length equals the remote
// object's logical length and its modification time is within one second
// of the remote logical timestamp. Fresh entries are served without any
// content download; stale or absent entries are re-fetched on open.
//
// # Compression
//
// With compression enabled, index-artifact files are stored compressed
// while their logical (uncompressed) length and timestamp travel as blob
// metadata, so stat queries and freshness checks always observe logical
// values. See compress.Codec for the available codecs.
//
// # Local development
//
// Pass remote.EmulatorKey together with WithEndpoint to target an
// unauthenticated local storage emulator.
package blobdir
