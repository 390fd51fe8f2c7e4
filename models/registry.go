// Package models - registry for the shipped pill models.
package models

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/go-pillcheck/models/model"
	"github.com/nvr-ai/go-pillcheck/models/postprocess"
)

// LookupPreset returns the preset of a shipped model.
//
// The presets mirror how each model was used in the field: the counting model was
// deduplicated by center distance, the identification model by NMS.
//
// Arguments:
//   - name: The model name, e.g. "pill-search".
//
// Returns:
//   - model.Preset: The preset, with default input and output shapes.
//   - error: An error if the model name is unknown.
//
// Example:
//
// ```go
//
//	preset, err := LookupPreset("pill-search")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	table, _ := ClassTable(preset)
//
// ```
func LookupPreset(name string) (model.Preset, error) {
	base := model.Preset{
		Name:      model.Name(name),
		Family:    model.ModelFamilyYOLOv5,
		InputSize: model.DefaultInputSize,
		Rows:      model.DefaultRows,
		Inputs:    []string{"images"},
		Outputs:   []string{"output0"},
	}

	switch base.Name {
	case model.ModelNamePillCount:
		base.Layout = postprocess.Layout{NumClasses: 9}
		base.Mode = postprocess.ModeCount
		base.Policy = postprocess.PolicyCenterDedup
		return base, nil
	case model.ModelNamePillSearch:
		base.Layout = postprocess.Layout{NumClasses: 11}
		base.Mode = postprocess.ModeIdentify
		base.Policy = postprocess.PolicyNMS
		base.Classes = PillSearchClasses.Labels()
		return base, nil
	case model.ModelNamePillBoxes:
		base.Layout = postprocess.Layout{NumClasses: 0}
		base.Mode = postprocess.ModeCount
		base.Policy = postprocess.PolicyNMS
		return base, nil
	default:
		return model.Preset{}, fmt.Errorf("unsupported model name: %s", name)
	}
}

// PresetNames lists the names LookupPreset accepts, sorted.
func PresetNames() []model.Name {
	names := []model.Name{model.ModelNamePillCount, model.ModelNamePillSearch, model.ModelNamePillBoxes}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ClassTable builds the class table of a preset.
func ClassTable(p model.Preset) (*PillClassTable, error) {
	return NewPillClassTable(p.Classes...)
}
