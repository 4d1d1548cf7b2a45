// Package cache provides named, versioned buckets of stored HTTP responses.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBucketNotFound is returned when a named bucket does not exist.
var ErrBucketNotFound = errors.New("cache bucket not found")

// Entry is a stored response keyed by request identity.
type Entry struct {
	Key      string      `json:"key"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// BucketInfo summarizes a bucket for listings.
type BucketInfo struct {
	Name    string    `json:"name"`
	Entries int       `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Created time.Time `json:"created"`
}

// Bucket holds the entries of one cache generation. Put and Match are atomic
// per key.
type Bucket interface {
	Name() string
	// Match returns the entry stored under key, or nil on a miss.
	Match(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds every bucket known to the worker.
type Storage interface {
	// Open returns the named bucket, creating it if needed.
	Open(ctx context.Context, name string) (Bucket, error)
	Has(ctx context.Context, name string) (bool, error)
	// Keys returns bucket names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a bucket and all of its entries. It reports whether the
	// bucket existed.
	Delete(ctx context.Context, name string) (bool, error)
	Info(ctx context.Context) ([]BucketInfo, error)
	Close() error
}

// Key returns the identity of a request: method and absolute URL, without fragment.
func Key(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return strings.ToUpper(method) + " " + u.String()
}

// NewEntry reads resp's body into a new entry for req. It returns the entry
// and a replacement response whose body can still be read by the caller.
func NewEntry(req *http.Request, resp *http.Response) (*Entry, *http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	e := &Entry{
		Key:      Key(req),
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
	return e, e.Response(req), nil
}

// Response rebuilds an *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
