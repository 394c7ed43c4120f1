package schema

import "strings"

// LogicalName derives the Dataverse logical name for a display name:
// the publisher prefix plus the lowercased name with spaces removed.
// "Order Header" with prefix "jr" becomes "jr_orderheader".
func LogicalName(prefix, displayName string) string {
	name := strings.ReplaceAll(strings.TrimSpace(displayName), " ", "")
	return prefix + "_" + strings.ToLower(name)
}

// SchemaName derives the schema name: the publisher prefix plus the
// PascalCase form of the display name. "Order Header" with prefix "jr"
// becomes "jr_OrderHeader".
func SchemaName(prefix, displayName string) string {
	return prefix + "_" + pascalCase(displayName)
}

func pascalCase(displayName string) string {
	words := strings.FieldsFunc(displayName, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}
