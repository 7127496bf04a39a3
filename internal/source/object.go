package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/storage"
)

// ObjectTemplate is a template in a GCS, S3, or Azure Blob bucket. Its
// key is the object key; its URI is the full object URI.
type ObjectTemplate struct {
	meta
	store *storage.Store
}

// RawText downloads the object on every call.
func (t *ObjectTemplate) RawText(ctx context.Context) (string, error) {
	data, err := t.store.Read(ctx, t.uri)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Render renders the object contents.
func (t *ObjectTemplate) Render(ctx context.Context, values params.Set, ignore []string) (string, error) {
	raw, err := t.RawText(ctx)
	if err != nil {
		return "", err
	}
	return t.render(raw, values, ignore)
}

type objectSource struct {
	inc    config.Include
	typ    Type
	scheme string
	store  *storage.Store
	deps   Deps
	filter *filter
}

// NewObjectSource creates the source for a GCS, S3, or AzureBlob include.
func NewObjectSource(inc config.Include, deps Deps) (Source, error) {
	if inc.BucketName == "" {
		return nil, fmt.Errorf("BucketName is required for %s", inc.TemplateSourceType)
	}

	var scheme string
	opts := storage.Options{}
	switch Type(inc.TemplateSourceType) {
	case TypeGCS:
		scheme = storage.SchemeGCS
		opts.GCSCredentialsFile = inc.CredentialsFile
	case TypeS3:
		scheme = storage.SchemeS3
		opts.S3Region = inc.Region
		opts.S3Endpoint = inc.Endpoint
		opts.S3UsePathStyle = inc.Endpoint != ""
	case TypeAzureBlob:
		scheme = storage.SchemeAzure
		opts.AzureAccountName = inc.AccountName
		opts.AzureServiceURL = inc.Endpoint
	default:
		return nil, errors.New("object source requires GCS, S3, or AzureBlob")
	}

	f, err := newFilter(inc.TemplateSourceType, inc.Regex, defaultSQLRegex, deps.Exclude)
	if err != nil {
		return nil, err
	}
	return &objectSource{
		inc:    inc,
		typ:    Type(inc.TemplateSourceType),
		scheme: scheme,
		store:  deps.Store.With(opts),
		deps:   deps,
		filter: f,
	}, nil
}

func (s *objectSource) Templates(ctx context.Context) ([]Template, error) {
	prefix := storage.Locator{
		Scheme: s.scheme,
		Bucket: s.inc.BucketName,
		Key:    strings.TrimPrefix(s.inc.Prefix, "/"),
	}
	locs, err := s.store.List(ctx, prefix.String())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	var out []Template
	for _, loc := range locs {
		if !s.filter.keep(loc.Key) {
			s.deps.Logger.Debug("template skipped", "uri", loc.String())
			continue
		}
		out = append(out, &ObjectTemplate{
			meta: meta{
				key:     loc.Key,
				kind:    KindObjectStore,
				typ:     s.typ,
				uri:     loc.String(),
				bucket:  loc.Bucket,
				project: s.inc.ProjectId,
				prefix:  s.inc.DefaultTablePrefix,
				logger:  s.deps.Logger,
			},
			store: s.store,
		})
	}
	return out, nil
}
