package config

// Default file names and settings.
const (
	ProjectFileName      = "leaplineage.yaml"
	ProjectFileNameAlt   = "leaplineage.yml"
	DefaultMappingPrefix = "mapping"
)

// defaults seeds koanf before the project file is loaded.
func defaults() map[string]any {
	return map[string]any{
		"Settings.MappingPrefix":               DefaultMappingPrefix,
		"Settings.ReportUnmappedWithoutParams": true,
	}
}
