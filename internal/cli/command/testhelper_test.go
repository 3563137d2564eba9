package command

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const testAPIKey = "abcdefghijklmnopqrstuvwxyz0123"

// writeConfig writes content to config.yaml in a fresh temp dir and returns
// its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// runApp runs the CLI with args and returns what it wrote.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{Name}, args...))
	return out.String(), err
}

const memoryConfig = `
storage:
  type: memory
log:
  level: error
core:
  api_keys: "` + testAPIKey + `"
tenants:
  - tenant_id: t1
`
