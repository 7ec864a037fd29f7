package couchbase

import (
	"fmt"
	"strings"

	"stealthcompany.com/patientrecords/internal/dal"
)

// QueryRow represents a row from SQL++ query results
type QueryRow struct {
	ID       string                 `json:"id"`
	Resource map[string]interface{} `json:"resource"`
}

// escapeIdentifier wraps a name in backticks. Names that contain a backtick
// are rejected rather than escaped.
func escapeIdentifier(name string) (string, error) {
	if name == "" || strings.Contains(name, "`") {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

// Keyspace builds the escaped bucket.scope.collection path
func Keyspace(bucket, scope, collection string) (string, error) {
	parts := make([]string, 0, 3)
	for _, name := range []string{bucket, scope, collection} {
		escaped, err := escapeIdentifier(name)
		if err != nil {
			return "", err
		}
		parts = append(parts, escaped)
	}
	return strings.Join(parts, "."), nil
}

func sqlOperator(op dal.Operator) (string, error) {
	switch op {
	case dal.OpEqual:
		return "=", nil
	case dal.OpGreaterOrEqual, dal.OpLess:
		return string(op), nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}

// BuildSelect renders a parameterized SELECT over keyspace. Each filter
// becomes one conjunct; a filter with several fields matches if any field
// does. Rows are ordered by the first range field, then by document key.
func BuildSelect(keyspace string, filters []dal.Filter) (string, map[string]interface{}, error) {
	params := make(map[string]interface{}, len(filters))
	conjuncts := make([]string, 0, len(filters))
	orderBy := ""

	for i, f := range filters {
		if len(f.Fields) == 0 {
			return "", nil, fmt.Errorf("filter %d has no fields", i)
		}
		op, err := sqlOperator(f.Op)
		if err != nil {
			return "", nil, err
		}

		param := fmt.Sprintf("p%d", i)
		params[param] = f.Value

		terms := make([]string, 0, len(f.Fields))
		for _, field := range f.Fields {
			escaped, err := escapeIdentifier(field)
			if err != nil {
				return "", nil, err
			}
			terms = append(terms, fmt.Sprintf("p.%s %s $%s", escaped, op, param))
			if orderBy == "" && f.Op.IsRange() {
				orderBy = "p." + escaped + ", "
			}
		}

		if len(terms) == 1 {
			conjuncts = append(conjuncts, terms[0])
		} else {
			conjuncts = append(conjuncts, "("+strings.Join(terms, " OR ")+")")
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT META(p).id AS id, p AS resource FROM ")
	sb.WriteString(keyspace)
	sb.WriteString(" AS p")
	if len(conjuncts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conjuncts, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	sb.WriteString("META(p).id")

	return sb.String(), params, nil
}

// indexStatements returns the secondary indexes backing the patient queries
func indexStatements(keyspace, collection string) []string {
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS `idx_%s_name_dob` ON %s(`name`, `dob`)", collection, keyspace),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS `idx_%s_name_DOB` ON %s(`name`, `DOB`)", collection, keyspace),
	}
}
