package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "ORGCHART_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "crud")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(sub))

	_ = os.Unsetenv("ORGCHART_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("ORGCHART_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("ORGCHART_TEST_ENV_LOAD"))
}

func TestLoad_DefaultsAndValidation(t *testing.T) {
	t.Setenv("STORE_BACKEND", " Memory ")
	t.Setenv("ROOT_KEYWORD", " Director General ")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load(nil)
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	require.Equal(t, StoreMemory, c.StoreBackend)
	require.Equal(t, "director general", c.RootKeyword)
	require.Equal(t, logrus.DebugLevel, c.Logger().GetLevel())
	require.Equal(t, "/metrics", c.Prometheus.Path)
	require.Contains(t, c.Database.Opts, "dbname=orgchart")

	t.Setenv("STORE_BACKEND", "redis")
	_, err = Load(nil)
	require.Error(t, err)

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = Load(nil)
	require.Error(t, err)
}

func TestLoad_HTTPOptions(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("OPS_GUARD_TOKEN", "secret")

	c, err := Load(nil)
	require.NoError(t, err)
	t.Cleanup(c.Unload)

	require.Equal(t, []string{"http://a.test", "http://b.test"}, c.CorsOrigins)
	require.Equal(t, "X-Request-Id", c.RequestIDHeader)
	require.False(t, c.RateLimit.Enabled)
	require.Equal(t, "600-M", c.RateLimit.Rate)
	require.False(t, c.OpsGuard.Enabled)
	require.Equal(t, "secret", c.OpsGuard.Token)
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
