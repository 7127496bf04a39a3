package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError lists every problem found in a mapping or project
// config.
type ValidationError struct {
	File     string
	Problems []string
}

func (e *ValidationError) Error() string {
	where := "configuration"
	if e.File != "" {
		where = e.File
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid %s: %s", where, e.Problems[0])
	}
	return fmt.Sprintf("invalid %s:\n  - %s", where, strings.Join(e.Problems, "\n  - "))
}

// Validate checks that every mapping entry has the match key its source
// type requires and that every table has a name.
func (m *MappingConfig) Validate() error {
	var problems []string
	for i, entry := range m.Mapping {
		where := fmt.Sprintf("Mapping[%d]", i)
		if p := entry.missingKey(); p != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", where, p))
		}
		if len(entry.Tables) == 0 {
			problems = append(problems, fmt.Sprintf("%s: Tables is empty", where))
		}
		for j, table := range entry.Tables {
			if table.TableName == "" {
				problems = append(problems, fmt.Sprintf("%s.Tables[%d]: TableName is required", where, j))
			}
		}
	}
	for i, extra := range m.ExtraLabels {
		if extra.TableName == "" {
			problems = append(problems, fmt.Sprintf("ExtraLabels[%d]: TableName is required", i))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (e MappingEntry) missingKey() string {
	switch {
	case strings.EqualFold(e.TemplateSourceType, SourceFile):
		if e.FileSuffix == "" && e.Uri == "" {
			return "FileSuffix is required for File"
		}
	case isObjectStore(e.TemplateSourceType):
		if e.Uri == "" {
			return fmt.Sprintf("Uri is required for %s", e.TemplateSourceType)
		}
	case strings.EqualFold(e.TemplateSourceType, SourceRedash):
		if e.QueryId == 0 || e.DataSourceName == "" {
			return "QueryId and DataSourceName are required for Redash"
		}
	case strings.EqualFold(e.TemplateSourceType, SourceDbt):
		if e.ProjectName == "" || e.FileSuffix == "" {
			return "ProjectName and FileSuffix are required for dbt"
		}
	case e.TemplateSourceType == "":
		return "TemplateSourceType is required"
	default:
		return fmt.Sprintf("unknown TemplateSourceType %q", e.TemplateSourceType)
	}
	return ""
}

// Validate checks include and exclude rules of the project config.
func (c *ProjectConfig) Validate() error {
	var problems []string
	for i, inc := range c.Include {
		if inc.TemplateSourceType == "" {
			problems = append(problems, fmt.Sprintf("Include[%d]: TemplateSourceType is required", i))
		}
		if inc.Regex != "" {
			if _, err := regexp.Compile(inc.Regex); err != nil {
				problems = append(problems, fmt.Sprintf("Include[%d]: invalid Regex: %v", i, err))
			}
		}
	}
	for i, ex := range c.Exclude {
		if _, err := regexp.Compile(ex.Regex); err != nil {
			problems = append(problems, fmt.Sprintf("Exclude[%d]: invalid Regex: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func isObjectStore(sourceType string) bool {
	return strings.EqualFold(sourceType, SourceGCS) ||
		strings.EqualFold(sourceType, SourceS3) ||
		strings.EqualFold(sourceType, SourceAzureBlob)
}
