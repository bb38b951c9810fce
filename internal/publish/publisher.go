// Package publish uploads synthesized narration to the object store.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/audio"
	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/objectstore"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/reliability"
)

// ErrIncompleteUpload is returned when the store reports success without a usable key or URL.
var ErrIncompleteUpload = errors.New("object store returned an empty path or url")

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9.\-]`)
	underscoreRun   = regexp.MustCompile(`_+`)
)

// SanitizeName makes a suggested file name safe for use as an object key segment.
func SanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = underscoreRun.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// DefaultName is <date>-<recordId>.<ext>.
func DefaultName(date time.Time, recordID string, f audio.Format) string {
	return fmt.Sprintf("%s-%s.%s", content.Date(date).Format(content.DateLayout), recordID, f.Extension())
}

// Target names the upload. Name wins when it sanitizes to something non-empty.
type Target struct {
	Name     string
	Date     time.Time
	RecordID string
}

// Published is where the audio landed.
type Published struct {
	URL  string
	Path string
	Size int64
}

type Publisher struct {
	store   objectstore.Store
	prefix  string
	logger  zerolog.Logger
	metrics *observability.Metrics
	policy  reliability.Policy
}

type Option func(*Publisher)

// WithPolicy overrides the retry policy. Retryable is always set by the publisher.
func WithPolicy(p reliability.Policy) Option {
	return func(pub *Publisher) { pub.policy = p }
}

func NewPublisher(store objectstore.Store, prefix string, logger zerolog.Logger, metrics *observability.Metrics, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger,
		metrics: metrics,
		policy: reliability.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Exponential: true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.policy.Name = "publish_audio"
	p.policy.Retryable = retryable
	p.policy.OnRetry = func(a reliability.Attempt) {
		p.metrics.ObserveRetry(p.policy.Name)
		p.logger.Warn().Err(a.Err).
			Int("attempt", a.Number).
			Int64("delay_ms", a.Delay.Milliseconds()).
			Msg("audio upload failed, retrying")
	}
	return p
}

// retryable rejects permission and validation failures and the empty-identifier check.
func retryable(err error) bool {
	return !errors.Is(err, objectstore.ErrPermission) &&
		!errors.Is(err, objectstore.ErrInvalid) &&
		!errors.Is(err, ErrIncompleteUpload)
}

// Key resolves the object key for t.
func (p *Publisher) Key(t Target, f audio.Format) string {
	name := SanitizeName(t.Name)
	if name == "" {
		name = DefaultName(t.Date, t.RecordID, f)
	}
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

func (p *Publisher) Publish(ctx context.Context, data []byte, f audio.Format, t Target) (Published, error) {
	if len(data) == 0 {
		return Published{}, fmt.Errorf("publish audio: %w: empty payload", objectstore.ErrInvalid)
	}
	key := p.Key(t, f)
	obj, err := reliability.Do(ctx, p.policy, func(ctx context.Context, _ int) (objectstore.Object, error) {
		obj, err := p.store.Put(ctx, key, data, f.ContentType())
		if err != nil {
			return objectstore.Object{}, err
		}
		if strings.TrimSpace(obj.Key) == "" || strings.TrimSpace(obj.URL) == "" {
			return objectstore.Object{}, fmt.Errorf("%w (key %q)", ErrIncompleteUpload, key)
		}
		return obj, nil
	})
	if err != nil {
		return Published{}, fmt.Errorf("publish audio %q: %w", key, err)
	}
	size := obj.Size
	if size == 0 {
		size = int64(len(data))
	}
	p.logger.Info().Str("path", obj.Key).Str("url", obj.URL).Int64("size", size).Msg("audio published")
	return Published{URL: obj.URL, Path: obj.Key, Size: size}, nil
}
