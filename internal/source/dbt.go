package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/storage"
)

// compiled schema tests live under .../schema.yml/<test>.sql
var dbtSchemaTest = regexp.MustCompile(`schema\.yml/.*\.sql$`)

// DbtTemplate is a compiled dbt model. The SQL is already rendered, so
// Render returns the raw text.
type DbtTemplate struct {
	meta
	store *storage.Store
}

// RawText reads the compiled model.
func (t *DbtTemplate) RawText(ctx context.Context) (string, error) {
	data, err := t.store.Read(ctx, t.key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Render returns the compiled model unchanged.
func (t *DbtTemplate) Render(ctx context.Context, _ params.Set, _ []string) (string, error) {
	return t.RawText(ctx)
}

// dbtProject is the part of dbt_project.yml that locates compiled models.
type dbtProject struct {
	Name       string   `yaml:"name"`
	TargetPath string   `yaml:"target-path"`
	ModelPaths []string `yaml:"model-paths"`
}

type dbtSource struct {
	inc    config.Include
	deps   Deps
	filter *filter
}

// NewDbtSource creates the source for a dbt include.
func NewDbtSource(inc config.Include, deps Deps) (Source, error) {
	if inc.ProjectDir == "" {
		return nil, errors.New("ProjectDir is required for dbt")
	}
	f, err := newFilter(inc.TemplateSourceType, inc.Regex, defaultSQLRegex, deps.Exclude)
	if err != nil {
		return nil, err
	}
	return &dbtSource{inc: inc, deps: deps, filter: f}, nil
}

// compileArgs returns the arguments of the dbt compile invocation.
func (s *dbtSource) compileArgs() ([]string, error) {
	profiles := s.inc.ProfilesDir
	if profiles == "" {
		profiles = s.inc.ProjectDir
	}
	args := []string{"compile", "--project-dir", s.inc.ProjectDir, "--profiles-dir", profiles}
	if s.inc.Target != "" {
		args = append(args, "--target", s.inc.Target)
	}
	if len(s.inc.Vars) > 0 {
		vars, err := json.Marshal(s.inc.Vars)
		if err != nil {
			return nil, fmt.Errorf("encode dbt vars: %w", err)
		}
		args = append(args, "--vars", string(vars))
	}
	return args, nil
}

func (s *dbtSource) project(ctx context.Context) (*dbtProject, error) {
	data, err := s.deps.Store.Read(ctx, filepath.Join(s.inc.ProjectDir, "dbt_project.yml"))
	if err != nil {
		return nil, err
	}
	var p dbtProject
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse dbt_project.yml: %w", err)
	}
	if p.Name == "" {
		return nil, errors.New("dbt_project.yml has no name")
	}
	if p.TargetPath == "" {
		p.TargetPath = "target"
	}
	if len(p.ModelPaths) == 0 {
		p.ModelPaths = []string{"models"}
	}
	return &p, nil
}

func (s *dbtSource) Templates(ctx context.Context) ([]Template, error) {
	if s.inc.Compile {
		args, err := s.compileArgs()
		if err != nil {
			return nil, err
		}
		s.deps.Logger.Info("running dbt compile", "project_dir", s.inc.ProjectDir)
		if out, err := s.deps.Run(ctx, "", "dbt", args...); err != nil {
			return nil, fmt.Errorf("dbt compile: %w\n%s", err, out)
		}
	}

	p, err := s.project(ctx)
	if err != nil {
		return nil, err
	}

	var out []Template
	for _, modelPath := range p.ModelPaths {
		root := filepath.Join(s.inc.ProjectDir, p.TargetPath, "compiled", p.Name, modelPath)
		locs, err := s.deps.Store.List(ctx, root)
		if errors.Is(err, storage.ErrNotFound) {
			s.deps.Logger.Warn("compiled models not found", "path", root)
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, loc := range locs {
			key := filepath.ToSlash(loc.Key)
			if dbtSchemaTest.MatchString(key) || !s.filter.keep(key) {
				s.deps.Logger.Debug("template skipped", "key", loc.Key)
				continue
			}
			uri, err := filepath.Abs(loc.Key)
			if err != nil {
				uri = loc.Key
			}
			out = append(out, &DbtTemplate{
				meta: meta{
					key:     loc.Key,
					kind:    KindTransformProject,
					typ:     TypeDbt,
					uri:     uri,
					project: p.Name,
					prefix:  s.inc.DefaultTablePrefix,
					logger:  s.deps.Logger,
				},
				store: s.deps.Store,
			})
		}
	}
	return out, nil
}
