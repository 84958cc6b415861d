/**
 * @description
 * Pure statement builder for the generic resource layer. Every identifier is quoted
 * with pgx.Identifier and every value travels as a positional argument; nothing a
 * client sends is spliced into statement text.
 */
package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sadaqah/roundup-service/internal/domain"
)

// Statement is SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Scope restricts a statement to rows owned by Owner when Enabled. For unscoped
// tables Owner is still used to default created_by on insert.
type Scope struct {
	Owner   string
	Enabled bool
}

// Predicate is a server-defined equality (one value) or membership (several values) test.
type Predicate struct {
	Column string
	Values []any
}

// Eq matches column = value.
func Eq(column string, value any) Predicate {
	return Predicate{Column: column, Values: []any{value}}
}

// In matches column = ANY(values).
func In(column string, values ...any) Predicate {
	return Predicate{Column: column, Values: values}
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) where(preds []Predicate) {
	for i, p := range preds {
		if i == 0 {
			b.sb.WriteString(" WHERE ")
		} else {
			b.sb.WriteString(" AND ")
		}
		b.sb.WriteString(quote(p.Column))
		if len(p.Values) == 1 {
			b.sb.WriteString(" = ")
			b.sb.WriteString(b.bind(p.Values[0]))
			continue
		}
		// compared as text so one array form serves uuid and text columns
		values := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			values = append(values, fmt.Sprint(v))
		}
		b.sb.WriteString("::text = ANY(")
		b.sb.WriteString(b.bind(values))
		b.sb.WriteString(")")
	}
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sb.String(), Args: b.args}
}

func scoped(scope Scope, preds []Predicate) []Predicate {
	if !scope.Enabled {
		return preds
	}
	return append(preds, Eq(domain.OwnerColumn, scope.Owner))
}

// BuildList selects up to limit rows of table ordered by sort.
func BuildList(table string, scope Scope, order SortSpec, limit int) Statement {
	var b builder
	b.sb.WriteString("SELECT * FROM ")
	b.sb.WriteString(quote(table))
	b.where(scoped(scope, nil))
	b.sb.WriteString(" ORDER BY ")
	b.sb.WriteString(quote(order.Field))
	if order.Direction == SortDesc {
		b.sb.WriteString(" DESC")
	} else {
		b.sb.WriteString(" ASC")
	}
	b.sb.WriteString(" LIMIT ")
	b.sb.WriteString(b.bind(limit))
	return b.statement()
}

// BuildFind selects at most limit rows of table matching every predicate.
func BuildFind(table string, limit int, preds ...Predicate) Statement {
	var b builder
	b.sb.WriteString("SELECT * FROM ")
	b.sb.WriteString(quote(table))
	b.where(preds)
	if limit > 0 {
		b.sb.WriteString(" LIMIT ")
		b.sb.WriteString(b.bind(limit))
	}
	return b.statement()
}

// BuildGet selects one row by id, restricted to the owner when scoped.
func BuildGet(table, id string, scope Scope) Statement {
	return BuildFind(table, 1, scoped(scope, []Predicate{Eq("id", id)})...)
}

// BuildInsert inserts values into table. Scoped tables always get created_by = owner;
// unscoped tables get it only when the body did not carry one.
func BuildInsert(table string, values domain.Row, scope Scope) (Statement, error) {
	row := make(domain.Row, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	if scope.Enabled {
		row[domain.OwnerColumn] = scope.Owner
	} else if _, ok := row[domain.OwnerColumn]; !ok && scope.Owner != "" {
		row[domain.OwnerColumn] = scope.Owner
	}
	if len(row) == 0 {
		return Statement{}, fmt.Errorf("%w: empty insert", domain.ErrInvalidRequest)
	}

	columns := sortedKeys(row)
	var b builder
	b.sb.WriteString("INSERT INTO ")
	b.sb.WriteString(quote(table))
	b.sb.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(quote(col))
	}
	b.sb.WriteString(") VALUES (")
	for i, col := range columns {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(b.bind(row[col]))
	}
	b.sb.WriteString(") RETURNING *")
	return b.statement(), nil
}

// BuildUpdate sets values on the row with id and stamps updated_date. Guards are
// extra server-side predicates used for compare-and-set updates.
func BuildUpdate(table, id string, values domain.Row, scope Scope, guards ...Predicate) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("%w: no fields to update", domain.ErrInvalidRequest)
	}
	var b builder
	b.sb.WriteString("UPDATE ")
	b.sb.WriteString(quote(table))
	b.sb.WriteString(" SET ")
	for _, col := range sortedKeys(values) {
		b.sb.WriteString(quote(col))
		b.sb.WriteString(" = ")
		b.sb.WriteString(b.bind(values[col]))
		b.sb.WriteString(", ")
	}
	b.sb.WriteString(quote("updated_date"))
	b.sb.WriteString(" = NOW()")
	b.where(scoped(scope, append([]Predicate{Eq("id", id)}, guards...)))
	b.sb.WriteString(" RETURNING *")
	return b.statement(), nil
}

// BuildDelete removes the row with id and returns its id.
func BuildDelete(table, id string, scope Scope, guards ...Predicate) Statement {
	var b builder
	b.sb.WriteString("DELETE FROM ")
	b.sb.WriteString(quote(table))
	b.where(scoped(scope, append([]Predicate{Eq("id", id)}, guards...)))
	b.sb.WriteString(" RETURNING ")
	b.sb.WriteString(quote("id"))
	return b.statement()
}

func sortedKeys(row domain.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
