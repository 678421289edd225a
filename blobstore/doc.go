// Package blobstore abstracts where archived allocation contents end up.
//
// The archive collaborator preserves the final bytes of deallocated memory;
// this package supplies the sinks it writes to. LocalStore keeps archives
// on the local filesystem and MemoryStore keeps them in process memory
// (mainly for tests). The s3 and minio subpackages ship remote sinks for
// S3-compatible object storage.
package blobstore
