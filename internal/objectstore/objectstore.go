// Package objectstore persists published audio blobs and resolves their public URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrPermission means the store refused the write; retrying will not help.
	ErrPermission = errors.New("object store permission denied")
	// ErrInvalid means the key or payload was rejected by the store.
	ErrInvalid  = errors.New("object store rejected request")
	ErrNotFound = errors.New("object not found")
)

// Object describes a stored blob.
type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// ValidateKey rejects empty, absolute and parent-relative keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalid)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: key %q is absolute", ErrInvalid, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: key %q has an invalid segment", ErrInvalid, key)
		}
	}
	return nil
}

// MediaURL is the public URL of key when the service itself serves the blob
// under /media/.
func MediaURL(publicBaseURL, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(publicBaseURL, "/") + "/media/" + strings.Join(segs, "/")
}
