// Package webhook publishes committed event records as HTTP POST requests.
//
// The request body is the encoded payload exactly as stored, labelled with
// the codec's media type through WithContentType. Record metadata travels in
// headers. Server errors and transport failures are retried with
// exponential backoff; client errors are not.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/havenhq/chronicle/adapters"
)

// Request header names.
const (
	HeaderAggregateID = "X-Chronicle-Aggregate-Id"
	HeaderEventType   = "X-Chronicle-Event-Type"
	HeaderSequence    = "X-Chronicle-Sequence"
	HeaderRecordedAt  = "X-Chronicle-Recorded-At"
)

// Publisher posts records to a single endpoint.
type Publisher struct {
	url            string
	client         *http.Client
	defaultHeaders map[string]string
	maxTries       uint
	newBackOff     func() backoff.BackOff
}

// Option configures a webhook Publisher.
type Option func(*Publisher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.client.Timeout = d
	}
}

// WithContentType sets the Content-Type of every request. Pass the media type
// of the store's codec, see chronicle.ContentTypeOf. Defaults to
// application/json.
func WithContentType(contentType string) Option {
	return func(p *Publisher) {
		if contentType != "" {
			p.defaultHeaders["Content-Type"] = contentType
		}
	}
}

// WithDefaultHeaders adds headers to every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(p *Publisher) {
		for k, v := range headers {
			p.defaultHeaders[k] = v
		}
	}
}

// WithMaxTries bounds delivery attempts per record. One disables retries.
func WithMaxTries(n uint) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.maxTries = n
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Publisher) {
		p.newBackOff = newBackOff
	}
}

// New creates a Publisher that posts to url.
func New(url string, opts ...Option) *Publisher {
	p := &Publisher{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
		maxTries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			return b
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// URL returns the endpoint.
func (p *Publisher) URL() string {
	return p.url
}

// Publish posts records one at a time in order and stops at the first
// record that cannot be delivered.
func (p *Publisher) Publish(ctx context.Context, records []adapters.EventRecord) error {
	for _, record := range records {
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, p.post(ctx, record)
		}, backoff.WithBackOff(p.newBackOff()), backoff.WithMaxTries(p.maxTries))
		if err != nil {
			return fmt.Errorf("webhook: failed to deliver %s #%d to %s: %w",
				record.AggregateID, record.Sequence, p.url, err)
		}
	}
	return nil
}

func (p *Publisher) post(ctx context.Context, record adapters.EventRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(record.Payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	for k, v := range p.defaultHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderAggregateID, record.AggregateID.String())
	req.Header.Set(HeaderEventType, record.EventType)
	req.Header.Set(HeaderSequence, strconv.FormatUint(record.Sequence, 10))
	req.Header.Set(HeaderRecordedAt, record.RecordedAt.UTC().Format(time.RFC3339Nano))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("client error %d", resp.StatusCode))
	}
	return nil
}
