package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/leapstack-labs/leaplineage/internal/params"
)

// ErrProjectNotFound is returned when no project file exists in a directory.
var ErrProjectNotFound = errors.New("project config not found")

// LoadProject loads leaplineage.yaml (or .yml) from dir.
func LoadProject(dir string) (*ProjectConfig, error) {
	path := findProjectFile(dir)
	if path == "" {
		return nil, fmt.Errorf("%w in %s (run 'leaplineage init' to create one)", ErrProjectNotFound, dir)
	}
	return LoadProjectFile(path)
}

// LoadProjectFile loads a project file from an explicit path.
func LoadProjectFile(path string) (*ProjectConfig, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var cfg ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range cfg.Include {
		expandInclude(&cfg.Include[i])
		resolveInclude(&cfg.Include[i], base)
	}
	return &cfg, nil
}

// expandInclude replaces ${VAR} references in path-like fields.
func expandInclude(inc *Include) {
	inc.FileSystemPath = os.ExpandEnv(inc.FileSystemPath)
	inc.CredentialsFile = os.ExpandEnv(inc.CredentialsFile)
	inc.Endpoint = os.ExpandEnv(inc.Endpoint)
	inc.ProjectDir = os.ExpandEnv(inc.ProjectDir)
	inc.ProfilesDir = os.ExpandEnv(inc.ProfilesDir)
}

// resolveInclude makes local paths relative to the project file's
// directory.
func resolveInclude(inc *Include, base string) {
	for _, p := range []*string{&inc.FileSystemPath, &inc.CredentialsFile, &inc.ProjectDir, &inc.ProfilesDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// LoadMapping loads the mapping files selected by settings from dir.
// Entries of several files are concatenated and their global parameters
// merged in file name order. A missing mapping file yields an empty
// config: every template is then reported as unmapped.
func LoadMapping(dir string, settings Settings) (*MappingConfig, error) {
	paths, err := mappingFiles(dir, settings)
	if err != nil {
		return nil, err
	}

	out := &MappingConfig{}
	for _, path := range paths {
		m, err := LoadMappingFile(path)
		if err != nil {
			return nil, err
		}
		out.Global.Parameters = params.Merge(out.Global.Parameters, m.Global.Parameters)
		out.Mapping = append(out.Mapping, m.Mapping...)
		out.ExtraLabels = append(out.ExtraLabels, m.ExtraLabels...)
	}
	return out, nil
}

// LoadMappingFile loads a single mapping file.
func LoadMappingFile(path string) (*MappingConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var m MappingConfig
	if err := k.Unmarshal("", &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &m, nil
}

func mappingFiles(dir string, settings Settings) ([]string, error) {
	if settings.MappingFilesRegex == "" {
		prefix := settings.MappingPrefix
		if prefix == "" {
			prefix = DefaultMappingPrefix
		}
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, prefix+ext)
			if _, err := os.Stat(path); err == nil {
				return []string{path}, nil
			}
		}
		return nil, nil
	}

	re, err := regexp.Compile(settings.MappingFilesRegex)
	if err != nil {
		return nil, fmt.Errorf("invalid MappingFilesRegex: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !re.MatchString(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func findProjectFile(dir string) string {
	for _, name := range []string{ProjectFileName, ProjectFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory holding a
// project file. It returns "" when none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findProjectFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
