package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgDetail is the part of a Postgres error worth logging, whichever driver
// raised it.
type pgDetail struct {
	code, constraint, table, column, detail string
}

func postgresDetail(err error) (pgDetail, bool) {
	if pgxErr := (*pgconn.PgError)(nil); errors.As(err, &pgxErr) {
		return pgDetail{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail}, true
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return pgDetail{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail}, true
	}
	return pgDetail{}, false
}

// LogFields flattens err into structured log fields: the public code when the
// chain carries one, every wrapped layer, and Postgres diagnostics.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	if pg, ok := postgresDetail(err); ok {
		fields["pg_code"] = pg.code
		for key, value := range map[string]string{
			"pg_constraint": pg.constraint,
			"pg_table":      pg.table,
			"pg_column":     pg.column,
			"pg_detail":     pg.detail,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}
