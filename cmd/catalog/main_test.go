package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestShellCommand_MemoryStore(t *testing.T) {
	script := strings.Join([]string{
		"register alice s3cret-pass",
		"login alice s3cret-pass",
		`add name="Desk Lamp" category=Lighting brand=Lumo price=19.99`,
		"get 1",
		"exit",
	}, "\n")

	out, err := runCLI(t, script, "shell", "--store", "memory", "--ops-addr", "", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "welcome, alice")
	assert.Contains(t, out, "product 1 added")
	assert.Contains(t, out, "Desk Lamp")
	assert.Contains(t, out, "bye")
}

func TestRootDefaultsToShell(t *testing.T) {
	out, err := runCLI(t, "whoami\n", "--ops-addr", "", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "guest")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	_, err := runCLI(t, "", "shell", "--store", "sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store "sqlite"`)

	_, err = runCLI(t, "", "shell", "--log-level", "loud", "--ops-addr", "")
	require.Error(t, err)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("CATALOG_DATABASE_URL", "")

	_, err := runCLI(t, "", "migrate", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url is required")
}
