package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaplineage/internal/params"
)

// UnmappedTemplate describes a template that needs a mapping entry.
type UnmappedTemplate struct {
	SourceType     string
	Key            string
	URI            string
	DataSourceName string
	ProjectName    string
	// TableName is a suggested name for the produced table.
	TableName string
	// Params are dotted parameter paths the template leaves undefined.
	Params []string
}

// ProjectTemplate returns a project config listing one include of each
// source type with placeholder values.
func ProjectTemplate() *ProjectConfig {
	return &ProjectConfig{
		Include: []Include{
			{TemplateSourceType: SourceFile, FileSystemPath: "./sql", Regex: `.*\.sql$`, DefaultTablePrefix: "PROJECT.DATASET"},
			{TemplateSourceType: SourceGCS, ProjectId: "PROJECT", BucketName: "BUCKET", Regex: `.*\.sql$`},
			{TemplateSourceType: SourceS3, BucketName: "BUCKET", Region: "us-east-1", Regex: `.*\.sql$`},
			{TemplateSourceType: SourceAzureBlob, AccountName: "ACCOUNT", BucketName: "CONTAINER", Regex: `.*\.sql$`},
			{TemplateSourceType: SourceRedash, DatabaseUrlEnvironmentVariable: "REDASH_DATABASE_URL", DataSourceName: "metadata"},
			{TemplateSourceType: SourceDbt, ProjectDir: ".", ProfilesDir: ".", Target: "dev"},
		},
		Exclude: []ExcludeRule{
			{TemplateSourceType: SourceFile, Regex: `.*/_.*\.sql$`},
		},
		Settings: Settings{
			MappingPrefix:               DefaultMappingPrefix,
			ReportUnmappedWithoutParams: true,
		},
	}
}

// WriteProjectTemplate writes ProjectTemplate to dir and returns the
// file path. An existing project file is never overwritten.
func WriteProjectTemplate(dir string) (string, error) {
	path := filepath.Join(dir, ProjectFileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := writeYAML(path, ProjectTemplate()); err != nil {
		return "", err
	}
	return path, nil
}

// MappingTemplate builds a mapping config with one entry per unmapped
// template. Undefined parameters become empty leaves to fill in.
func MappingTemplate(unmapped []UnmappedTemplate) *MappingConfig {
	m := &MappingConfig{}
	for _, u := range unmapped {
		table := MappedTable{TableName: u.TableName}
		if len(u.Params) > 0 {
			table.Parameters = params.FromPaths(u.Params)
		}

		entry := MappingEntry{
			TemplateSourceType: u.SourceType,
			Tables:             []MappedTable{table},
		}
		switch {
		case strings.EqualFold(u.SourceType, SourceRedash):
			entry.QueryId, _ = strconv.Atoi(u.Key)
			entry.DataSourceName = u.DataSourceName
		case strings.EqualFold(u.SourceType, SourceDbt):
			entry.ProjectName = u.ProjectName
			entry.FileSuffix = u.Key
		case isObjectStore(u.SourceType):
			entry.Uri = u.URI
		default:
			entry.FileSuffix = u.Key
		}
		m.Mapping = append(m.Mapping, entry)
	}
	return m
}

// WriteMappingTemplate writes MappingTemplate to
// <dir>/<prefix>_checked_<timestamp>.yaml and returns the file path.
func WriteMappingTemplate(dir, prefix string, unmapped []UnmappedTemplate, now time.Time) (string, error) {
	if prefix == "" {
		prefix = DefaultMappingPrefix
	}
	name := fmt.Sprintf("%s_checked_%s.yaml", prefix, now.UTC().Format("20060102150405"))
	path := filepath.Join(dir, name)
	if err := writeYAML(path, MappingTemplate(unmapped)); err != nil {
		return "", err
	}
	return path, nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
