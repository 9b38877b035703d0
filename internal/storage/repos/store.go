package repos

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	DB *sql.DB
}

const timeFormat = time.RFC3339Nano

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func newID() string {
	return uuid.NewString()
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func fromJSON[T any](s string) T {
	var v T
	if strings.TrimSpace(s) == "" {
		return v
	}
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func parseTS(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, f := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
