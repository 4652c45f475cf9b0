package db

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
)

// String-list columns are stored as JSON text so the same row shape works on
// both Postgres and SQLite.

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(ns sql.NullString, log *logrus.Entry) []string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		log.WithError(err).Warn("decode string list column")
		return []string{}
	}
	return out
}

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
