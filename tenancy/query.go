package tenancy

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type verb int

const (
	verbSelect verb = iota
	verbUpdate
	verbDelete
)

// Query builds SELECT, UPDATE and DELETE statements against a tenant-owned
// table. Conditions use `?` placeholders; Build appends the organization
// filter for the given scope and rebinds to PostgreSQL `$n` placeholders.
type Query struct {
	verb      verb
	table     string
	columns   string
	sets      []string
	setArgs   []interface{}
	conds     []string
	args      []interface{}
	orderBy   string
	limit     int
	offset    int
	returning string
}

// Select starts a SELECT of columns
func Select(columns string) *Query {
	return &Query{verb: verbSelect, columns: columns}
}

// From sets the table of a SELECT
func (q *Query) From(table string) *Query {
	q.table = table
	return q
}

// Update starts an UPDATE of table
func Update(table string) *Query {
	return &Query{verb: verbUpdate, table: table}
}

// DeleteFrom starts a DELETE from table
func DeleteFrom(table string) *Query {
	return &Query{verb: verbDelete, table: table}
}

// Set adds `column = ?` to an UPDATE
func (q *Query) Set(column string, value interface{}) *Query {
	return q.SetExpr(column+" = ?", value)
}

// SetExpr adds a raw assignment such as `use_count = use_count + 1`
func (q *Query) SetExpr(expr string, args ...interface{}) *Query {
	q.sets = append(q.sets, expr)
	q.setArgs = append(q.setArgs, args...)
	return q
}

// Where adds a condition joined with AND. Each condition is rendered in
// parentheses.
func (q *Query) Where(cond string, args ...interface{}) *Query {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
	return q
}

// OrderBy sets the ORDER BY expression
func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = expr
	return q
}

// Limit sets LIMIT when n > 0
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset sets OFFSET when n > 0
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Returning sets the RETURNING column list of an UPDATE or DELETE
func (q *Query) Returning(columns string) *Query {
	q.returning = columns
	return q
}

// Build renders the statement for scope
func (q *Query) Build(scope Scope) (string, []interface{}, error) {
	if err := scope.Validate(); err != nil {
		return "", nil, err
	}
	if q.table == "" {
		return "", nil, fmt.Errorf("tenancy query without table")
	}

	// Caller conditions are parenthesized so an OR inside one cannot
	// escape the organization filter.
	conds := make([]string, 0, len(q.conds)+1)
	for _, c := range q.conds {
		conds = append(conds, "("+c+")")
	}
	condArgs := append([]interface{}(nil), q.args...)
	if !scope.IsUnscoped() {
		conds = append(conds, Column+" = ?")
		condArgs = append(condArgs, scope.OrganizationID())
	}

	var sb strings.Builder
	var args []interface{}

	switch q.verb {
	case verbSelect:
		fmt.Fprintf(&sb, "SELECT %s FROM %s", q.columns, q.table)
	case verbUpdate:
		if len(q.sets) == 0 {
			return "", nil, fmt.Errorf("tenancy update of %s without assignments", q.table)
		}
		fmt.Fprintf(&sb, "UPDATE %s SET %s", q.table, strings.Join(q.sets, ", "))
		args = append(args, q.setArgs...)
	case verbDelete:
		fmt.Fprintf(&sb, "DELETE FROM %s", q.table)
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
		args = append(args, condArgs...)
	}

	if q.verb == verbSelect {
		if q.orderBy != "" {
			sb.WriteString(" ORDER BY " + q.orderBy)
		}
		if q.limit > 0 {
			sb.WriteString(" LIMIT ?")
			args = append(args, q.limit)
		}
		if q.offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, q.offset)
		}
	} else if q.returning != "" {
		sb.WriteString(" RETURNING " + q.returning)
	}

	return sqlx.Rebind(sqlx.DOLLAR, sb.String()), args, nil
}
