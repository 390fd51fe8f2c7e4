// Package detectors - Pill detector pipeline configuration
package detectors

import (
	"os"

	"github.com/nvr-ai/go-pillcheck/inference"
	"github.com/nvr-ai/go-pillcheck/inference/providers"
	"github.com/nvr-ai/go-pillcheck/models"
	"github.com/nvr-ai/go-pillcheck/models/model"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of one detector pipeline: how the raw model output
// is decoded, filtered, suppressed and interpreted, and which engine produces it.
type Config struct {
	// Preset names the shipped model the rest of the configuration was derived from.
	Preset string `json:"preset" yaml:"preset"`

	// ConfidenceThreshold drops detections at or below this objectness.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// IoUThreshold is the overlap above which two boxes are the same pill.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`

	// Mode selects counting or identification.
	Mode postprocess.Mode `json:"mode" yaml:"mode"`

	// Policy selects the duplicate suppression rule.
	Policy postprocess.Policy `json:"policy" yaml:"policy"`

	// MinCenterDistance is the center_dedup distance, expressed in CenterSpace.
	MinCenterDistance float32 `json:"min_center_distance" yaml:"min_center_distance"`

	// CenterSpace is the space MinCenterDistance is measured in.
	CenterSpace postprocess.CenterSpace `json:"center_space" yaml:"center_space"`

	// MergeTolerance is the per-coordinate tolerance of coord_merge.
	MergeTolerance float32 `json:"merge_tolerance" yaml:"merge_tolerance"`

	// InputSize is the edge length of the square model input, in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`

	// Layout describes the rows of the raw output tensor.
	Layout postprocess.Layout `json:"layout" yaml:"layout"`

	// Classes are the pill labels in class index order. Empty uses the preset's table.
	Classes []string `json:"classes" yaml:"classes"`

	// Engine configures the model invoker.
	Engine inference.EngineConfig `json:"engine" yaml:"engine"`

	// Metrics configures the result metrics.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// DefaultConfig returns the configuration of the pill identification model with the
// recommended NMS suppression.
//
// Returns:
//   - Config: Configuration with the recommended thresholds
//
// @example
// config := DefaultConfig()
// config.Mode = postprocess.ModeCount
// detector, err := NewDetector(config, models.PillSearchClasses)
func DefaultConfig() Config {
	suppression := postprocess.DefaultSuppressionConfig()

	config := Config{
		ConfidenceThreshold: 0.6,
		IoUThreshold:        suppression.IoUThreshold,
		Mode:                postprocess.ModeIdentify,
		Policy:              suppression.Policy,
		MinCenterDistance:   suppression.MinCenterDistance,
		CenterSpace:         suppression.CenterSpace,
		MergeTolerance:      suppression.MergeTolerance,
		InputSize:           suppression.InputSize,
		Engine:              inference.EngineConfig{Provider: providers.DefaultConfig()},
		Metrics:             DefaultMetricsConfig(),
	}

	preset, err := models.LookupPreset(string(model.ModelNamePillSearch))
	if err == nil {
		config.ApplyPreset(preset)
	}
	return config
}

// ApplyPreset copies a preset's layout, mode, policy, input size and model shapes into
// the configuration.
func (c *Config) ApplyPreset(preset model.Preset) {
	c.Preset = string(preset.Name)
	c.Layout = preset.Layout
	c.Mode = preset.Mode
	c.Policy = preset.Policy
	c.InputSize = preset.InputSize
	c.Classes = append([]string(nil), preset.Classes...)

	c.Engine.InputShape = preset.InputShape()
	c.Engine.OutputShape = preset.OutputShape()
	c.Engine.InputNames = preset.Inputs
	c.Engine.OutputNames = preset.Outputs
	if c.Engine.Type == "" {
		c.Engine.Type = inference.EngineONNX
	}
	if preset.Path != "" {
		c.Engine.ModelPath = preset.Path
	}
}

// Suppression returns the suppression engine parameters.
func (c Config) Suppression() postprocess.SuppressionConfig {
	return postprocess.SuppressionConfig{
		Policy:            c.Policy,
		IoUThreshold:      c.IoUThreshold,
		MinCenterDistance: c.MinCenterDistance,
		CenterSpace:       c.CenterSpace,
		InputSize:         c.InputSize,
		MergeTolerance:    c.MergeTolerance,
	}
}

// ClassTable builds the pill class table named by Classes.
func (c Config) ClassTable() (*models.PillClassTable, error) {
	return models.NewPillClassTable(c.Classes...)
}

// Validate checks the configuration for values the pipeline cannot run with.
//
// Returns:
//   - error: The first invalid field, nil if the configuration is usable.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Errorf("confidence_threshold must be within [0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return errors.Errorf("iou_threshold must be within [0, 1], got %v", c.IoUThreshold)
	}
	if c.MinCenterDistance < 0 {
		return errors.Errorf("min_center_distance must not be negative, got %v", c.MinCenterDistance)
	}
	if c.MergeTolerance < 0 {
		return errors.Errorf("merge_tolerance must not be negative, got %v", c.MergeTolerance)
	}
	if c.InputSize <= 0 {
		return errors.Errorf("input_size must be positive, got %d", c.InputSize)
	}
	if c.Layout.NumClasses < 0 || c.Layout.NumClasses > models.MaxClasses {
		return errors.Wrapf(models.ErrTooManyClasses, "layout.num_classes is %d", c.Layout.NumClasses)
	}
	if len(c.Classes) > models.MaxClasses {
		return errors.Wrapf(models.ErrTooManyClasses, "classes has %d labels", len(c.Classes))
	}
	if _, err := c.Layout.BoxFormat.MarshalText(); err != nil {
		return err
	}
	if _, err := c.Mode.MarshalText(); err != nil {
		return err
	}
	if _, err := c.Policy.MarshalText(); err != nil {
		return err
	}
	if _, err := c.CenterSpace.MarshalText(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a YAML configuration file over DefaultConfig.
//
// A `preset` key is applied first, so the rest of the file overrides the preset.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	return LoadConfigOver(DefaultConfig(), path)
}

// LoadConfigOver reads a YAML configuration file over base. Fields the file does not
// set keep their value from base.
//
// Arguments:
//   - base: The configuration the file is layered on, e.g. DefaultConfig with a preset
//     applied.
//   - path: The YAML file.
//
// Returns:
//   - Config: The validated configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfigOver(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}
	return ParseConfigOver(base, data)
}

// ParseConfig decodes a YAML configuration over DefaultConfig. See LoadConfig.
func ParseConfig(data []byte) (Config, error) {
	return ParseConfigOver(DefaultConfig(), data)
}

// ParseConfigOver decodes a YAML configuration over base. See LoadConfigOver.
func ParseConfigOver(base Config, data []byte) (Config, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}

	config := base
	config.Classes = append([]string(nil), base.Classes...)
	if head.Preset != "" {
		preset, err := models.LookupPreset(head.Preset)
		if err != nil {
			return Config{}, err
		}
		config.ApplyPreset(preset)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	if err := config.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid config")
	}
	return config, nil
}
