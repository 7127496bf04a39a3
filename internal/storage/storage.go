// Package storage reads and writes blobs addressed by locators: local
// paths, gs://, s3:// and az:// object URIs, and sqlite:// snapshot
// databases. It backs both template enumeration and map persistence.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// ErrNotFound is returned when a locator does not exist.
var ErrNotFound = errors.New("not found")

// Locator schemes.
const (
	SchemeFile   = "file"
	SchemeGCS    = "gs"
	SchemeS3     = "s3"
	SchemeAzure  = "az"
	SchemeSQLite = "sqlite"
)

// DefaultSnapshotName is used by sqlite:// locators without a name.
const DefaultSnapshotName = "default"

// Locator is a parsed storage address.
type Locator struct {
	Scheme string
	Bucket string // bucket, container, or database path
	Key    string // object key, file path, or snapshot name
}

func (l Locator) String() string {
	switch l.Scheme {
	case SchemeFile:
		return l.Key
	case SchemeSQLite:
		return fmt.Sprintf("sqlite://%s?name=%s", l.Bucket, url.QueryEscape(l.Key))
	default:
		return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
	}
}

// ParseLocator parses a locator. Anything without a scheme is a local
// path.
func ParseLocator(s string) (Locator, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		if s == "" {
			return Locator{}, errors.New("empty locator")
		}
		return Locator{Scheme: SchemeFile, Key: s}, nil
	}

	switch scheme {
	case SchemeFile:
		return Locator{Scheme: SchemeFile, Key: rest}, nil
	case SchemeSQLite:
		path, query, _ := strings.Cut(rest, "?")
		if path == "" {
			return Locator{}, fmt.Errorf("empty database path in %q", s)
		}
		values, err := url.ParseQuery(query)
		if err != nil {
			return Locator{}, fmt.Errorf("parse %q: %w", s, err)
		}
		name := values.Get("name")
		if name == "" {
			name = DefaultSnapshotName
		}
		return Locator{Scheme: SchemeSQLite, Bucket: path, Key: name}, nil
	case SchemeGCS, SchemeS3, SchemeAzure:
		u, err := url.Parse(s)
		if err != nil {
			return Locator{}, fmt.Errorf("parse %q: %w", s, err)
		}
		if u.Host == "" {
			return Locator{}, fmt.Errorf("missing bucket in %q", s)
		}
		return Locator{Scheme: scheme, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	default:
		return Locator{}, fmt.Errorf("unsupported scheme %q in %q", scheme, s)
	}
}

// Bucket is one storage namespace: a local filesystem, an object store
// bucket or container, or a snapshot database.
type Bucket interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Opener opens the bucket with the given name for one scheme.
type Opener func(ctx context.Context, bucket string) (Bucket, error)

// Options holds credentials for the remote backends. Empty fields fall
// back to the usual environment variables where the backend has one.
type Options struct {
	GCSCredentialsFile string

	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	AzureAccountName string
	AzureAccountKey  string
	AzureServiceURL  string

	Logger *slog.Logger
}

// merge returns o with the non-empty fields of override applied.
func (o Options) merge(override Options) Options {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&o.GCSCredentialsFile, override.GCSCredentialsFile)
	set(&o.S3Region, override.S3Region)
	set(&o.S3Endpoint, override.S3Endpoint)
	set(&o.S3AccessKeyID, override.S3AccessKeyID)
	set(&o.S3SecretAccessKey, override.S3SecretAccessKey)
	set(&o.AzureAccountName, override.AzureAccountName)
	set(&o.AzureAccountKey, override.AzureAccountKey)
	set(&o.AzureServiceURL, override.AzureServiceURL)
	if override.S3UsePathStyle {
		o.S3UsePathStyle = true
	}
	if override.Logger != nil {
		o.Logger = override.Logger
	}
	return o
}

// Store dispatches locators to buckets by scheme. Buckets are opened on
// first use and cached.
type Store struct {
	opts   Options
	logger *slog.Logger
	custom map[string]Opener

	mu      sync.Mutex
	buckets map[string]Bucket
}

// New creates a Store with the built-in backends.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		opts:    opts,
		logger:  logger,
		custom:  make(map[string]Opener),
		buckets: make(map[string]Bucket),
	}
}

// Register replaces the opener for a scheme.
func (s *Store) Register(scheme string, open Opener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom[scheme] = open
}

// With returns a Store using opts on top of the current options. Openers
// registered on s are shared; opened buckets are not.
func (s *Store) With(opts Options) *Store {
	out := New(s.opts.merge(opts))
	s.mu.Lock()
	for scheme, open := range s.custom {
		out.custom[scheme] = open
	}
	s.mu.Unlock()
	return out
}

func (s *Store) opener(scheme string) (Opener, error) {
	if open, ok := s.custom[scheme]; ok {
		return open, nil
	}
	switch scheme {
	case SchemeFile:
		return func(context.Context, string) (Bucket, error) { return localBucket{}, nil }, nil
	case SchemeGCS:
		return s.openGCS, nil
	case SchemeS3:
		return s.openS3, nil
	case SchemeAzure:
		return s.openAzure, nil
	case SchemeSQLite:
		return s.openSQLite, nil
	}
	return nil, fmt.Errorf("unsupported scheme %q", scheme)
}

func (s *Store) bucket(ctx context.Context, loc Locator) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := loc.Scheme + "://" + loc.Bucket
	if b, ok := s.buckets[id]; ok {
		return b, nil
	}
	open, err := s.opener(loc.Scheme)
	if err != nil {
		return nil, err
	}
	b, err := open(ctx, loc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	s.logger.Debug("opened storage bucket", "bucket", id)
	s.buckets[id] = b
	return b, nil
}

// Read returns the blob at locator. A missing blob yields an error
// wrapping ErrNotFound.
func (s *Store) Read(ctx context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	b, err := s.bucket(ctx, loc)
	if err != nil {
		return nil, err
	}
	data, err := b.Read(ctx, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", locator, err)
	}
	return data, nil
}

// Write stores data at locator.
func (s *Store) Write(ctx context.Context, locator string, data []byte) error {
	loc, err := ParseLocator(locator)
	if err != nil {
		return err
	}
	b, err := s.bucket(ctx, loc)
	if err != nil {
		return err
	}
	if err := b.Write(ctx, loc.Key, data); err != nil {
		return fmt.Errorf("write %s: %w", locator, err)
	}
	s.logger.Debug("wrote blob", "locator", locator, "bytes", len(data))
	return nil
}

// List returns the locators of every blob under the prefix locator.
func (s *Store) List(ctx context.Context, prefix string) ([]Locator, error) {
	loc, err := ParseLocator(prefix)
	if err != nil {
		return nil, err
	}
	b, err := s.bucket(ctx, loc)
	if err != nil {
		return nil, err
	}
	keys, err := b.List(ctx, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make([]Locator, 0, len(keys))
	for _, key := range keys {
		out = append(out, Locator{Scheme: loc.Scheme, Bucket: loc.Bucket, Key: key})
	}
	return out, nil
}

// Close releases every opened bucket that holds resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, b := range s.buckets {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", id, err))
			}
		}
		delete(s.buckets, id)
	}
	return errors.Join(errs...)
}
