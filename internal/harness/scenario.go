package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mirror/internal/record"
)

// Scenario defines a conformance scenario: an initial remote set, a
// sequence of submitted transactions with scripted handler outcomes and
// sink faults, and expectations on the final view.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Initial is the remote data set served to every sync.
	Initial []record.Record `yaml:"initial,omitempty"`

	// Faults are scripted sink failures. Nth counts calls of a phase
	// across the whole run, including the initial sync.
	Faults []Fault `yaml:"faults,omitempty"`

	// Steps run in order after the initial sync has settled.
	Steps []Step `yaml:"steps,omitempty"`

	// Expect validates the final view and per-step errors.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Fault scripts the nth call of a sink phase to fail. Phase is one of
// begin, commit, write, write.insert, write.update, write.delete.
type Fault struct {
	Phase string `yaml:"phase"`
	Nth   int    `yaml:"nth"`
}

// Step is either a submitted transaction or an explicit resync.
type Step struct {
	Submit *SubmitStep `yaml:"submit,omitempty"`
	Resync bool        `yaml:"resync,omitempty"`
}

// SubmitStep describes one mutation transaction and the outcome its
// handler reports.
type SubmitStep struct {
	Type      string          `yaml:"type"`
	Mutations []record.Record `yaml:"mutations"`
	Outcome   *OutcomeSpec    `yaml:"outcome,omitempty"`
}

// OutcomeSpec selects exactly one handler result. A nil OutcomeSpec (or
// the zero value) settles as the empty outcome.
type OutcomeSpec struct {
	Canonical []record.Record `yaml:"canonical,omitempty"`
	Refetch   *bool           `yaml:"refetch,omitempty"`
	Fail      bool            `yaml:"fail,omitempty"`
}

// Expect validates the run. Items is order-insensitive; Errors has one
// entry per step, empty string for success, otherwise a substring of the
// step's error.
type Expect struct {
	Items  []record.Record `yaml:"items,omitempty"`
	Errors []string        `yaml:"errors,omitempty"`
}

var validPhases = map[string]bool{
	"begin":        true,
	"commit":       true,
	"write":        true,
	"write.insert": true,
	"write.update": true,
	"write.delete": true,
}

var validTypes = map[string]bool{"insert": true, "update": true, "delete": true}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scn Scenario
	if err := yaml.Unmarshal(data, &scn); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := scn.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scn, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	for i, f := range s.Faults {
		if !validPhases[f.Phase] {
			return fmt.Errorf("fault %d: unknown phase %q", i, f.Phase)
		}
		if f.Nth < 1 {
			return fmt.Errorf("fault %d: nth must be >= 1", i)
		}
	}

	for i, step := range s.Steps {
		switch {
		case step.Submit != nil && step.Resync:
			return fmt.Errorf("step %d: submit and resync are mutually exclusive", i)
		case step.Submit == nil && !step.Resync:
			return fmt.Errorf("step %d: step needs submit or resync", i)
		case step.Submit != nil:
			sub := step.Submit
			if !validTypes[sub.Type] {
				return fmt.Errorf("step %d: unknown mutation type %q", i, sub.Type)
			}
			if len(sub.Mutations) == 0 {
				return fmt.Errorf("step %d: submit needs at least one mutation", i)
			}
			if out := sub.Outcome; out != nil {
				set := 0
				if len(out.Canonical) > 0 {
					set++
				}
				if out.Refetch != nil {
					set++
				}
				if out.Fail {
					set++
				}
				if set > 1 {
					return fmt.Errorf("step %d: outcome selects more than one result", i)
				}
			}
		}
	}

	if s.Expect != nil && len(s.Expect.Errors) > 0 && len(s.Expect.Errors) != len(s.Steps) {
		return fmt.Errorf("expect.errors needs one entry per step (%d steps, %d entries)",
			len(s.Steps), len(s.Expect.Errors))
	}

	return nil
}
