package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/audio"
	"github.com/ent0n29/dailyquote/internal/objectstore"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/reliability"
)

var mp3 = audio.Format{Encoding: "mp3_44100_128", Container: audio.ContainerMP3, SampleRate: 44100, BitrateKbps: 128}

type scriptedStore struct {
	mu    sync.Mutex
	errs  []error
	obj   *objectstore.Object
	keys  []string
	inner *objectstore.MemoryStore
}

func (s *scriptedStore) Put(ctx context.Context, key string, data []byte, ct string) (objectstore.Object, error) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return objectstore.Object{}, err
	}
	if s.obj != nil {
		return *s.obj, nil
	}
	return s.inner.Put(ctx, key, data, ct)
}

func (s *scriptedStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	return s.inner.Get(ctx, key)
}

func newTestPublisher(store objectstore.Store, prefix string) *Publisher {
	return NewPublisher(store, prefix, zerolog.Nop(), observability.NopMetrics(), WithPolicy(reliability.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Exponential: true,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}))
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"test file@#$%name!.mp3": "test_file_name_.mp3",
		"__lead and trail__.wav": "lead_and_trail_.wav",
		"2026-01-02-abc.mp3":     "2026-01-02-abc.mp3",
		"@@@":                    "",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKey(t *testing.T) {
	p := newTestPublisher(objectstore.NewMemoryStore(""), "/audio/")
	date := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	if got := p.Key(Target{Date: date, RecordID: "rec-1"}, mp3); got != "audio/2026-01-02-rec-1.mp3" {
		t.Fatalf("default key = %q", got)
	}
	if got := p.Key(Target{Name: "test file@#$%name!.mp3", Date: date, RecordID: "rec-1"}, mp3); got != "audio/test_file_name_.mp3" {
		t.Fatalf("named key = %q", got)
	}
	if got := p.Key(Target{Name: "!!!", Date: date, RecordID: "r"}, audio.Format{Container: audio.ContainerWAV}); got != "audio/2026-01-02-r.wav" {
		t.Fatalf("fallback key = %q", got)
	}
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	store := &scriptedStore{
		errs:  []error{errors.New("connection reset"), errors.New("timeout")},
		inner: objectstore.NewMemoryStore("https://q.example.com"),
	}
	p := newTestPublisher(store, "")

	got, err := p.Publish(context.Background(), []byte{1, 2, 3, 4}, mp3, Target{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), RecordID: "r1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got.Path != "2026-01-02-r1.mp3" || got.URL != "https://q.example.com/media/2026-01-02-r1.mp3" || got.Size != 4 {
		t.Fatalf("published = %+v", got)
	}
	if len(store.keys) != 3 {
		t.Fatalf("attempts = %d, want 3", len(store.keys))
	}
}

func TestPublishExhaustsRetries(t *testing.T) {
	boom := errors.New("unavailable")
	store := &scriptedStore{errs: []error{boom, boom, boom, boom}, inner: objectstore.NewMemoryStore("")}
	_, err := newTestPublisher(store, "").Publish(context.Background(), []byte{1}, mp3, Target{RecordID: "r"})
	var ex *reliability.ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 3 || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want exhausted after 3 attempts", err)
	}
}

func TestPublishFatalStoreErrors(t *testing.T) {
	for _, sentinel := range []error{objectstore.ErrPermission, objectstore.ErrInvalid} {
		store := &scriptedStore{errs: []error{fmt.Errorf("put: %w", sentinel)}, inner: objectstore.NewMemoryStore("")}
		_, err := newTestPublisher(store, "").Publish(context.Background(), []byte{1}, mp3, Target{RecordID: "r"})
		if !errors.Is(err, sentinel) {
			t.Fatalf("error = %v, want %v", err, sentinel)
		}
		if len(store.keys) != 1 {
			t.Fatalf("%v retried: %d attempts", sentinel, len(store.keys))
		}
	}
}

func TestPublishRejectsEmptyIdentifiers(t *testing.T) {
	store := &scriptedStore{obj: &objectstore.Object{Key: "a.mp3", URL: ""}, inner: objectstore.NewMemoryStore("")}
	_, err := newTestPublisher(store, "").Publish(context.Background(), []byte{1}, mp3, Target{RecordID: "r"})
	if !errors.Is(err, ErrIncompleteUpload) {
		t.Fatalf("error = %v, want ErrIncompleteUpload", err)
	}
	if len(store.keys) != 1 {
		t.Fatalf("attempts = %d, want 1", len(store.keys))
	}
}

func TestPublishRejectsEmptyPayload(t *testing.T) {
	if _, err := newTestPublisher(objectstore.NewMemoryStore(""), "").Publish(context.Background(), nil, mp3, Target{}); !errors.Is(err, objectstore.ErrInvalid) {
		t.Fatalf("error = %v", err)
	}
}
