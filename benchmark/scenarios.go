package benchmark

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-pillcheck/models"
	"github.com/nvr-ai/go-pillcheck/models/model"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
)

// Scenario is one benchmark configuration: a preset, a suppression policy and the
// shape of the synthetic output tensor fed to the detector.
type Scenario struct {
	Name   string     `json:"name"   yaml:"name"`
	Preset model.Name `json:"preset" yaml:"preset"`
	// Policy overrides the preset's suppression policy when set.
	Policy string `json:"policy" yaml:"policy"`
	// Rows is the number of rows of the output tensor.
	Rows int `json:"rows" yaml:"rows"`
	// Pills is the number of real pills in the tensor.
	Pills int `json:"pills" yaml:"pills"`
	// Duplicates is the number of jittered duplicate rows per pill.
	Duplicates int `json:"duplicates" yaml:"duplicates"`
	Iterations int `json:"iterations" yaml:"iterations"`
	WarmupRuns int `json:"warmup_runs" yaml:"warmup_runs"`
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Preset:     model.ModelNamePillSearch,
			Rows:       model.DefaultRows,
			Pills:      8,
			Duplicates: 3,
			Iterations: 100,
			WarmupRuns: 10,
		},
	}
}

// WithPreset sets the model preset
func (sb *ScenarioBuilder) WithPreset(name model.Name) *ScenarioBuilder {
	sb.scenario.Preset = name
	return sb
}

// WithPolicy overrides the preset's suppression policy
func (sb *ScenarioBuilder) WithPolicy(policy postprocess.Policy) *ScenarioBuilder {
	sb.scenario.Policy = policy.String()
	return sb
}

// WithRows sets the output tensor row count
func (sb *ScenarioBuilder) WithRows(rows int) *ScenarioBuilder {
	sb.scenario.Rows = rows
	return sb
}

// WithPills sets how many pills, and duplicate rows per pill, the tensor holds
func (sb *ScenarioBuilder) WithPills(pills, duplicates int) *ScenarioBuilder {
	sb.scenario.Pills = pills
	sb.scenario.Duplicates = duplicates
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// Validate checks that the scenario can run.
func (s Scenario) Validate() error {
	if _, err := models.LookupPreset(string(s.Preset)); err != nil {
		return err
	}
	if s.Policy != "" {
		if _, err := postprocess.ParsePolicy(s.Policy); err != nil {
			return err
		}
	}
	if s.Iterations <= 0 {
		return errors.Errorf("scenario %s: iterations must be positive", s.Name)
	}
	if s.Rows < s.Pills*(s.Duplicates+1) {
		return errors.Errorf("scenario %s: %d rows cannot hold %d pills with %d duplicates",
			s.Name, s.Rows, s.Pills, s.Duplicates)
	}
	if s.Pills > MaxPills {
		return errors.Errorf("scenario %s: at most %d pills fit the tray", s.Name, MaxPills)
	}
	return nil
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// QuickScenarios runs every preset with every suppression policy on full-size tensors.
func QuickScenarios() *ScenarioSet {
	set := &ScenarioSet{
		Name:        "Quick",
		Description: "Every preset with every suppression policy on full-size output tensors",
	}
	for _, preset := range models.PresetNames() {
		for _, policy := range []postprocess.Policy{
			postprocess.PolicyNMS,
			postprocess.PolicyCoordMerge,
			postprocess.PolicyCenterDedup,
		} {
			set.Scenarios = append(set.Scenarios, NewScenarioBuilder(fmt.Sprintf("%s_%s", preset, policy)).
				WithPreset(preset).
				WithPolicy(policy).
				Build())
		}
	}
	return set
}

// CrowdedTrayScenarios measures how suppression scales with the number of pills.
func CrowdedTrayScenarios() *ScenarioSet {
	set := &ScenarioSet{
		Name:        "Crowded tray",
		Description: "NMS on the identification preset with a growing number of pills",
	}
	for _, pills := range []int{1, 8, 32, MaxPills} {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(fmt.Sprintf("pills_%d", pills)).
			WithPills(pills, 5).
			Build())
	}
	return set
}

// LoadScenarioSet reads a YAML scenario set. Unset scenario fields take the builder
// defaults.
func LoadScenarioSet(path string) (*ScenarioSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario set")
	}

	var raw struct {
		Name        string      `yaml:"name"`
		Description string      `yaml:"description"`
		Scenarios   []yaml.Node `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse scenario set")
	}

	set := &ScenarioSet{Name: raw.Name, Description: raw.Description}
	for i := range raw.Scenarios {
		scenario := NewScenarioBuilder(fmt.Sprintf("scenario_%d", i)).Build()
		if err := raw.Scenarios[i].Decode(&scenario); err != nil {
			return nil, errors.Wrapf(err, "scenario %d", i)
		}
		if err := scenario.Validate(); err != nil {
			return nil, err
		}
		set.Scenarios = append(set.Scenarios, scenario)
	}
	return set, nil
}
