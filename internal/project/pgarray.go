package project

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// textArray adapts a []string to/from the Postgres text[] wire format;
// duplicated from internal/store since pgx's stdlib driver (unlike lib/pq)
// has no built-in array convenience and the two packages intentionally
// don't share an internal dependency for a small helper.
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
