// Package minio provides a blobstore.Store backed by MinIO or any
// S3-compatible object storage.
//
// Archived allocation contents are streamed with an unknown content
// length, so the uploader never buffers a whole archive in memory.
package minio
