// Package uibundle manages the admin UI bundle the server hands to adminui.
//
// A bundle is a directory tree with an index.html at its root. It comes from
// one of three places: the copy embedded in the binary, a directory on disk,
// or a tar.gz published to S3 whose SHA-256 is announced through an SSM
// parameter.
//
//   - [Manager] holds the active [Snapshot] behind an atomic.Pointer and
//     satisfies adminui.Source and httpmw.BundleInfo
//   - [Loader] fetches a bundle by hash, verifies it and extracts it in memory
//   - [Watcher] polls SSM and swaps new bundles into the Manager
//
// Extraction enforces compressed size, per-file and total size limits and
// rejects any entry whose path could escape the bundle root.
package uibundle
