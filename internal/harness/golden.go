package harness

import (
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario, evaluates its expectations, and
// compares the result against the golden file testdata/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenarioPath string) {
	t.Helper()

	scn, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}

	res, err := Run(scn)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scn.Name, err)
	}

	for _, checkErr := range Check(scn, res) {
		t.Errorf("scenario %s: %v", scn.Name, checkErr)
	}

	data, err := marshalResult(res)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	g := goldie.New(t)
	g.Assert(t, scn.Name, data)
}

// marshalResult renders a result as indented JSON with a trailing
// newline, the format stored in golden files.
func marshalResult(res *Result) ([]byte, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return append(data, '\n'), nil
}
