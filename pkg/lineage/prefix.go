package lineage

import "strings"

// SolveTablePrefix qualifies a partially qualified table name with the
// leading segments of defaultPrefix. Fully qualified names and an empty
// prefix leave table unchanged.
//
//	SolveTablePrefix("TABLE_d", "PROJECT_A.DATASET_A") == "PROJECT_A.DATASET_A.TABLE_d"
func SolveTablePrefix(table, defaultPrefix string) string {
	segments := strings.Split(table, ".")
	if len(segments) >= maxSegments || defaultPrefix == "" {
		return table
	}

	prefix := strings.Split(defaultPrefix, ".")
	need := maxSegments - len(segments)
	if need > len(prefix) {
		need = len(prefix)
	}
	return strings.Join(append(prefix[:need:need], segments...), ".")
}
