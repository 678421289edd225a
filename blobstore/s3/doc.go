// Package s3 provides a blobstore.Store backed by Amazon S3.
//
// Archived allocation contents are streamed to S3 through the SDK's
// managed uploader; reads use ranged GetObject requests so that inspecting
// a slice of an archive does not download the whole object.
package s3
