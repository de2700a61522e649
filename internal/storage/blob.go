package storage

import "io"

// BlobStore holds generated report payloads keyed by path.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
