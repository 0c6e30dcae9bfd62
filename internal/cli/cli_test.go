package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// runCommand executes the CLI with the given args on a fresh root command
// and returns both output streams.
func runCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeResponse parses a JSON-format command response.
func decodeResponse(t *testing.T, stdout string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "output: %s", stdout)
	return resp
}

// dataField digs one field out of a response's data payload.
func dataField(t *testing.T, resp Response, field string) any {
	t.Helper()
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %v", resp.Data)
	return data[field]
}

const sampleItems = `collection: widgets
items:
  - key: "1"
    fields: {name: bolt, qty: 3}
  - key: "2"
    fields: {name: nut, qty: 8}
`
