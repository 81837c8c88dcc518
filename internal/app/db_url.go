package app

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/riskibarqy/fixture-harvester/internal/config"
)

const pqBinaryResultParam = "disable_prepared_binary_result"

// dataSourceName adapts DB_URL for the selected driver. lib/pq gets
// disable_prepared_binary_result=yes unless the DSN already sets it, in both
// URL form and keyword/value form. Other drivers take DB_URL as is.
func dataSourceName(driver, raw string) string {
	raw = strings.TrimSpace(raw)
	if driver != config.DBDriverPostgres || raw == "" {
		return raw
	}

	if isURLDSN(raw) {
		parsed, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		query := parsed.Query()
		if query.Get(pqBinaryResultParam) == "" {
			query.Set(pqBinaryResultParam, "yes")
			parsed.RawQuery = query.Encode()
		}
		return parsed.String()
	}

	if _, ok := keywordValue(raw, pqBinaryResultParam); ok {
		return raw
	}
	return raw + " " + pqBinaryResultParam + "=yes"
}

// dbName is the name reported on database spans: the URL path, the dbname
// keyword, or the SQLite file name without extension.
func dbName(driver, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if driver == config.DBDriverSQLite {
		path := raw
		if parsed, err := url.Parse(raw); err == nil && parsed.Scheme == "file" {
			path = parsed.Opaque
			if path == "" {
				path = parsed.Path
			}
		}
		path, _, _ = strings.Cut(path, "?")
		if path == "" || path == ":memory:" {
			return ""
		}
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}

	if isURLDSN(raw) {
		if parsed, err := url.Parse(raw); err == nil {
			return strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/"))
		}
		return ""
	}

	name, _ := keywordValue(raw, "dbname")
	return name
}

func isURLDSN(raw string) bool {
	return strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://")
}

func keywordValue(dsn, key string) (string, bool) {
	for _, token := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(token, "=")
		if !ok || k != key {
			continue
		}
		return strings.Trim(strings.TrimSpace(v), `"'`), true
	}
	return "", false
}
