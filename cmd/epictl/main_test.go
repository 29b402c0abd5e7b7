package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prudhvinik1/episync/internal/database"
	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		wantCode int
	}{
		{name: "eight weeks", date: "2024-02-26"},
		{name: "too young", date: "2024-02-25", wantCode: 2},
		{name: "before birth", date: "2023-12-31", wantCode: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "validate", "--dob", "2024-01-01", "--date", tt.date, "--vaccine", "penta1")
			if tt.wantCode == 0 {
				require.NoError(t, err)
				assert.Contains(t, out, "ok: penta1")
				return
			}
			var ee *exitErr
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.wantCode, ee.code)
		})
	}

	_, err := execute(t, "validate", "--dob", "2024-01-01", "--date", "2024-02-26", "--vaccine", "covid")
	var ee *exitErr
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.code)
}

func TestScheduleCommand_JSON(t *testing.T) {
	out, err := execute(t, "schedule", "--format", "json")
	require.NoError(t, err)

	var groups []schedule.VaccineGroup
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.NotEmpty(t, groups)
	assert.Equal(t, "birth", groups[0].ID)
}

func TestProgressAndDefaulters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episync.db")
	ctx := context.Background()

	db, err := database.NewSQLiteDB(ctx, path)
	require.NoError(t, err)
	kv, err := repositories.NewSQLiteKVStore(ctx, db)
	require.NoError(t, err)
	store := repositories.NewStore(kv, nil)
	_, err = store.Children.Upsert(ctx, models.Child{
		ID:          "c1",
		FullName:    "Awa Ceesay",
		MCNumber:    "2024-0012",
		DateOfBirth: models.MustParseDate("2024-01-01"),
		Facility:    "Sukuta Health Centre",
		Status:      models.ChildActive,
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := execute(t, "progress", "c1", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Awa Ceesay (2024-0012)")
	assert.Contains(t, out, "0%")

	_, err = execute(t, "progress", "missing", "--db", path)
	var ee *exitErr
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 4, ee.code)

	out, err = execute(t, "defaulters", "--db", path, "--facility", "Sukuta Health Centre")
	require.NoError(t, err)
	assert.Contains(t, out, "Awa Ceesay")
}

func TestSyncCommand_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "sync", "--db", filepath.Join(t.TempDir(), "episync.db"))
	var ee *exitErr
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.code)
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := execute(t, "schedule", "--format", "xml")
	assert.Error(t, err)
}
