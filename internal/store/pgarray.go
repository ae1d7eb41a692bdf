package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// textArray adapts a []string to the Postgres text[] literal wire format.
// pgx's stdlib driver does not expose lib/pq's Array() convenience, so this
// is hand-rolled rather than pulling in a second driver's helper package.
type textArray []string

func (a textArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	escaped := make([]string, len(a))
	for i, s := range a {
		escaped[i] = `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
	}
	return "{" + strings.Join(escaped, ",") + "}", nil
}

func (a *textArray) Scan(src any) error {
	if src == nil {
		*a = nil
		return nil
	}
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("textArray: unsupported scan source %T", src)
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "{"), "}")
	if raw == "" {
		*a = textArray{}
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimSuffix(strings.TrimPrefix(p, `"`), `"`)
		out[i] = strings.ReplaceAll(strings.ReplaceAll(p, `\"`, `"`), `\\`, `\`)
	}
	*a = out
	return nil
}

// int64Array adapts a []int64 to the Postgres bigint[] literal format, used
// to delete a batch of queued_messages rows by seq.
type int64Array []int64

func (a int64Array) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}
