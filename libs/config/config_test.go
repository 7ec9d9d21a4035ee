package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	t.Setenv("HP_TEST_PORT", "70000")
	_, err := Port("HP_TEST_PORT", "8080")
	assert.Error(t, err)

	t.Setenv("HP_TEST_PORT", "")
	p, err := Port("HP_TEST_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("HP_INT", "25")
	t.Setenv("HP_BAD_INT", "-3")
	t.Setenv("HP_BOOL", "yes")
	t.Setenv("HP_DUR_SECONDS", "15")
	t.Setenv("HP_DUR", "2m")
	t.Setenv("HP_LIST", " a, ,b ,c")

	assert.Equal(t, 25, Int("HP_INT", 1))
	assert.Equal(t, 7, Int("HP_BAD_INT", 7))
	assert.True(t, Bool("HP_BOOL", false))
	assert.True(t, Bool("HP_MISSING_BOOL", true))
	assert.Equal(t, 15*time.Second, Duration("HP_DUR_SECONDS", time.Second))
	assert.Equal(t, 2*time.Minute, Duration("HP_DUR", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, List("HP_LIST", ""))
}

func TestRequiredString(t *testing.T) {
	t.Setenv("HP_REQUIRED", "")
	_, err := RequiredString("HP_REQUIRED")
	assert.EqualError(t, err, "HP_REQUIRED is required")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HP_FROM_FILE=clinic\nHP_PRESET=file\n"), 0o600))
	t.Setenv("HP_PRESET", "env")
	t.Cleanup(func() { _ = os.Unsetenv("HP_FROM_FILE") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "clinic", String("HP_FROM_FILE", ""))
	assert.Equal(t, "env", String("HP_PRESET", ""))
}
