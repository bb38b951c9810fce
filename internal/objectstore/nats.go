package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
)

const contentTypeHeader = "Content-Type"

// NatsStore keeps blobs in a JetStream object store bucket. The service serves
// them under /media/.
type NatsStore struct {
	bucket  string
	baseURL string
	store   nats.ObjectStore
}

// NewNatsStore binds to bucket, creating it when it does not exist yet.
func NewNatsStore(js nats.JetStreamContext, bucket, publicBaseURL string) (*NatsStore, error) {
	store, err := js.ObjectStore(bucket)
	if err != nil {
		store, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: fmt.Sprintf("Published narration for %s.", bucket),
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
	}
	return &NatsStore{bucket: bucket, baseURL: publicBaseURL, store: store}, nil
}

// DialNats connects to url and opens the bucket.
func DialNats(url, bucket, publicBaseURL string) (*NatsStore, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("dailyquote"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	s, err := NewNatsStore(js, bucket, publicBaseURL)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return s, nc, nil
}

func (n *NatsStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := ValidateKey(key); err != nil {
		return Object{}, err
	}
	if len(data) == 0 {
		return Object{}, fmt.Errorf("%w: empty payload", ErrInvalid)
	}
	info, err := n.store.Put(&nats.ObjectMeta{
		Name:    key,
		Headers: nats.Header{contentTypeHeader: []string{contentType}},
	}, bytes.NewReader(data), nats.Context(ctx))
	if err != nil {
		return Object{}, fmt.Errorf("put object %q to bucket %q: %w", key, n.bucket, classifyNats(err))
	}
	return Object{Key: key, URL: MediaURL(n.baseURL, key), Size: int64(info.Size), ContentType: contentType}, nil
}

func (n *NatsStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("get object %q from bucket %q: %w", key, n.bucket, classifyNats(err))
	}
	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, "", fmt.Errorf("read object %q: %w", key, readErr)
	}
	if closeErr != nil {
		return nil, "", fmt.Errorf("close object %q: %w", key, closeErr)
	}
	contentType := ""
	if info, err := obj.Info(); err == nil && info.Headers != nil {
		contentType = info.Headers.Get(contentTypeHeader)
	}
	return data, contentType, nil
}

func classifyNats(err error) error {
	switch {
	case errors.Is(err, nats.ErrObjectNotFound):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, nats.ErrBadObjectMeta), errors.Is(err, nats.ErrInvalidStoreName):
		return errors.Join(ErrInvalid, err)
	case errors.Is(err, nats.ErrPermissionViolation):
		return errors.Join(ErrPermission, err)
	default:
		return err
	}
}
