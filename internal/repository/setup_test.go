package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blinkdate/match-server-go/internal/database"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL,
// applies the schema and truncates all tables. Tests are skipped when
// the variable is unset so the unit suite runs without Postgres.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping repository tests")
	}

	db, err := database.Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/schema.sql")
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), string(schema))
	require.NoError(t, err)

	_, err = db.ExecContext(context.Background(),
		`TRUNCATE video_sessions, call_sessions, matches, matching_sessions,
		 user_interests, interests, profiles, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *database.DB) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO users (email) VALUES ($1) RETURNING id`,
		fmt.Sprintf("user-%d@test.local", userSeq())).Scan(&id)
	require.NoError(t, err)
	return id
}

var nextUserSeq int

func userSeq() int {
	nextUserSeq++
	return nextUserSeq
}
