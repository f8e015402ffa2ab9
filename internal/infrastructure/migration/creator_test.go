package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/saas/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add tenants table", "add_tenants_table"},
		{"Add-Invoice-Index", "add_invoice_index"},
		{"ADD_DEAD_LETTERS", "add_dead_letters"},
		{"add__payments__refund", "add_payments_refund"},
		{"Backfill 2024", "backfill_2024"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)

	mf, err := Create(dir, "add invoice index", "Index invoices by due date", now)
	require.NoError(t, err)

	assert.Equal(t, "20240501123045", mf.Version)
	assert.Equal(t, filepath.Join(dir, "20240501123045_add_invoice_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "20240501123045_add_invoice_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "Index invoices by due date")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	t.Run("same version twice is refused", func(t *testing.T) {
		_, err := Create(dir, "add invoice index", "", now)
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := Create(dir, "!!!", "", now)
		assert.Error(t, err)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		nested := filepath.Join(dir, "nested", "migrations")
		_, err := Create(nested, "init", "", now)
		require.NoError(t, err)
		info, err := os.Stat(nested)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestList(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_add_payments.up.sql":   {Data: []byte("--")},
		"000002_add_payments.down.sql": {Data: []byte("--")},
		"000001_init.up.sql":           {Data: []byte("--")},
		"000001_init.down.sql":         {Data: []byte("--")},
		"README.md":                    {Data: []byte("docs")},
		"archive/000000_old.up.sql":    {Data: []byte("--")},
	}

	names, err := List(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init", "000002_add_payments"}, names)
}

func TestList_MissingDirectory(t *testing.T) {
	names, err := List(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestList_EmbeddedSchema(t *testing.T) {
	names, err := List(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20240301000001_create_tenants",
		"20240301000002_create_billing",
		"20240301000003_create_dead_letter_jobs",
	}, names)
}
