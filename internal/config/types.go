// Package config loads the project and mapping configuration files.
//
// The project file (leaplineage.yaml) declares where SQL templates come
// from. Mapping files (mapping.yaml by default) declare which table each
// template produces and the parameters used to render it.
package config

import (
	"github.com/leapstack-labs/leaplineage/internal/params"
)

// Template source types as written in configuration files.
const (
	SourceFile      = "File"
	SourceGCS       = "GCS"
	SourceS3        = "S3"
	SourceAzureBlob = "AzureBlob"
	SourceRedash    = "Redash"
	SourceDbt       = "dbt"
)

// ProjectConfig is the content of leaplineage.yaml.
type ProjectConfig struct {
	Include  []Include     `koanf:"Include" yaml:"Include"`
	Exclude  []ExcludeRule `koanf:"Exclude" yaml:"Exclude"`
	Settings Settings      `koanf:"Settings" yaml:"Settings"`
}

// Include declares one template source. Which fields apply depends on
// TemplateSourceType.
type Include struct {
	TemplateSourceType string `koanf:"TemplateSourceType" yaml:"TemplateSourceType"`
	DefaultTablePrefix string `koanf:"DefaultTablePrefix" yaml:"DefaultTablePrefix,omitempty"`
	Regex              string `koanf:"Regex" yaml:"Regex,omitempty"`

	// File
	FileSystemPath string `koanf:"FileSystemPath" yaml:"FileSystemPath,omitempty"`

	// GCS, S3, AzureBlob
	ProjectId       string `koanf:"ProjectId" yaml:"ProjectId,omitempty"`
	BucketName      string `koanf:"BucketName" yaml:"BucketName,omitempty"`
	Prefix          string `koanf:"Prefix" yaml:"Prefix,omitempty"`
	Region          string `koanf:"Region" yaml:"Region,omitempty"`
	Endpoint        string `koanf:"Endpoint" yaml:"Endpoint,omitempty"`
	AccountName     string `koanf:"AccountName" yaml:"AccountName,omitempty"`
	CredentialsFile string `koanf:"CredentialsFile" yaml:"CredentialsFile,omitempty"`

	// Redash
	DatabaseUrlEnvironmentVariable string `koanf:"DatabaseUrlEnvironmentVariable" yaml:"DatabaseUrlEnvironmentVariable,omitempty"`
	DataSourceName                 string `koanf:"DataSourceName" yaml:"DataSourceName,omitempty"`
	QueryIds                       []int  `koanf:"QueryIds" yaml:"QueryIds,omitempty"`

	// dbt
	ProjectDir  string         `koanf:"ProjectDir" yaml:"ProjectDir,omitempty"`
	ProfilesDir string         `koanf:"ProfilesDir" yaml:"ProfilesDir,omitempty"`
	Target      string         `koanf:"Target" yaml:"Target,omitempty"`
	Vars        map[string]any `koanf:"Vars" yaml:"Vars,omitempty"`
	Compile     bool           `koanf:"Compile" yaml:"Compile,omitempty"`
}

// ExcludeRule skips templates of one source type whose key matches Regex.
type ExcludeRule struct {
	TemplateSourceType string `koanf:"TemplateSourceType" yaml:"TemplateSourceType"`
	Regex              string `koanf:"Regex" yaml:"Regex"`
}

// Settings holds project-wide options.
type Settings struct {
	MappingPrefix string `koanf:"MappingPrefix" yaml:"MappingPrefix"`
	// MappingFilesRegex, when set, loads every matching file in the
	// config directory instead of <MappingPrefix>.yaml.
	MappingFilesRegex string `koanf:"MappingFilesRegex" yaml:"MappingFilesRegex,omitempty"`
	// ReportUnmappedWithoutParams lists templates that match no mapping
	// entry even when they use no placeholders.
	ReportUnmappedWithoutParams bool `koanf:"ReportUnmappedWithoutParams" yaml:"ReportUnmappedWithoutParams"`
}

// MappingConfig is the merged content of the mapping files.
type MappingConfig struct {
	Global      Global         `koanf:"Global" yaml:"Global,omitempty"`
	Mapping     []MappingEntry `koanf:"Mapping" yaml:"Mapping"`
	ExtraLabels []ExtraLabel   `koanf:"ExtraLabels" yaml:"ExtraLabels,omitempty"`
}

// Global holds parameters applied to every template.
type Global struct {
	Parameters params.Set `koanf:"Parameters" yaml:"Parameters,omitempty"`
}

// MappingEntry maps templates to the tables they produce. The match key
// depends on the source type: FileSuffix for File, Uri for object
// stores, QueryId and DataSourceName for Redash, ProjectName and
// FileSuffix for dbt.
type MappingEntry struct {
	TemplateSourceType string        `koanf:"TemplateSourceType" yaml:"TemplateSourceType"`
	FileSuffix         string        `koanf:"FileSuffix" yaml:"FileSuffix,omitempty"`
	Uri                string        `koanf:"Uri" yaml:"Uri,omitempty"`
	QueryId            int           `koanf:"QueryId" yaml:"QueryId,omitempty"`
	DataSourceName     string        `koanf:"DataSourceName" yaml:"DataSourceName,omitempty"`
	ProjectName        string        `koanf:"ProjectName" yaml:"ProjectName,omitempty"`
	Tables             []MappedTable `koanf:"Tables" yaml:"Tables"`
}

// MappedTable is one table produced by a template.
type MappedTable struct {
	TableName        string            `koanf:"TableName" yaml:"TableName"`
	Parameters       params.Set        `koanf:"Parameters" yaml:"Parameters,omitempty"`
	IgnoreParameters []string          `koanf:"IgnoreParameters" yaml:"IgnoreParameters,omitempty"`
	Labels           map[string]string `koanf:"Labels" yaml:"Labels,omitempty"`
}

// ExtraLabel attaches labels to a table that no mapping entry declares,
// typically a source table.
type ExtraLabel struct {
	TableName string            `koanf:"TableName" yaml:"TableName"`
	Labels    map[string]string `koanf:"Labels" yaml:"Labels"`
}
