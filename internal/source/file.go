package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/storage"
)

const defaultSQLRegex = `.*\.sql`

// FileTemplate is a template in the local filesystem. Its key is the
// path as found under FileSystemPath; its URI is the absolute path.
type FileTemplate struct {
	meta
	store *storage.Store
}

// RawText reads the file through the store on every call.
func (t *FileTemplate) RawText(ctx context.Context) (string, error) {
	data, err := t.store.Read(ctx, t.key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Render renders the file contents.
func (t *FileTemplate) Render(ctx context.Context, values params.Set, ignore []string) (string, error) {
	raw, err := t.RawText(ctx)
	if err != nil {
		return "", err
	}
	return t.render(raw, values, ignore)
}

type fileSource struct {
	inc    config.Include
	deps   Deps
	filter *filter
}

// NewFileSource creates the source for a File include.
func NewFileSource(inc config.Include, deps Deps) (Source, error) {
	if inc.FileSystemPath == "" {
		return nil, errors.New("FileSystemPath is required for File")
	}
	f, err := newFilter(inc.TemplateSourceType, inc.Regex, defaultSQLRegex, deps.Exclude)
	if err != nil {
		return nil, err
	}
	return &fileSource{inc: inc, deps: deps, filter: f}, nil
}

func (s *fileSource) Templates(ctx context.Context) ([]Template, error) {
	locs, err := s.deps.Store.List(ctx, s.inc.FileSystemPath)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.inc.FileSystemPath, err)
	}

	var out []Template
	for _, loc := range locs {
		if !s.filter.keep(filepath.ToSlash(loc.Key)) {
			s.deps.Logger.Debug("template skipped", "key", loc.Key)
			continue
		}
		uri, err := filepath.Abs(loc.Key)
		if err != nil {
			uri = loc.Key
		}
		out = append(out, &FileTemplate{
			meta: meta{
				key:    loc.Key,
				kind:   KindFile,
				typ:    TypeFile,
				uri:    uri,
				prefix: s.inc.DefaultTablePrefix,
				logger: s.deps.Logger,
			},
			store: s.deps.Store,
		})
	}
	return out, nil
}
