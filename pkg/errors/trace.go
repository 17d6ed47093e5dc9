package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// detail keys copied from typed error details into log entries
var tracedDetailKeys = []string{"step", "line", "product_id", "order_id"}

// LogFields flattens err into structured log fields: its code, whether a retry
// is safe, the wrapped causes and, for postgres failures, the SQLSTATE and the
// violated constraint. Nothing here is meant for API clients.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{
		"error_code": string(CodeOf(err)),
		"retryable":  Retryable(err),
	}

	var causes []string
	for cause := stdErrors.Unwrap(err); cause != nil; cause = stdErrors.Unwrap(cause) {
		causes = append(causes, fmt.Sprintf("%T: %v", cause, cause))
	}
	if len(causes) > 0 {
		fields["error_causes"] = causes
	}

	if typed := As(err); typed != nil {
		if details, ok := typed.Details().(map[string]any); ok {
			for _, key := range tracedDetailKeys {
				if v, ok := details[key]; ok {
					fields[key] = v
				}
			}
		}
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		putNonEmpty(fields, "sqlstate", pgxErr.Code)
		putNonEmpty(fields, "pg_constraint", pgxErr.ConstraintName)
		putNonEmpty(fields, "pg_table", pgxErr.TableName)
		putNonEmpty(fields, "pg_detail", pgxErr.Detail)
	case stdErrors.As(err, &pqErr):
		putNonEmpty(fields, "sqlstate", string(pqErr.Code))
		putNonEmpty(fields, "pg_constraint", pqErr.Constraint)
		putNonEmpty(fields, "pg_table", pqErr.Table)
		putNonEmpty(fields, "pg_detail", pqErr.Detail)
	}
	return fields
}

func putNonEmpty(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
