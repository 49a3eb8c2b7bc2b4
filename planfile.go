package epubreplace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// planFile is the YAML form of a replacement plan:
//
//	mode: sequential
//	normalize_nfc: false
//	search: [colour, centre]
//	replace: [color, center]
type planFile struct {
	Mode         string   `yaml:"mode"`
	NormalizeNFC bool     `yaml:"normalize_nfc"`
	Search       []string `yaml:"search"`
	Replace      []string `yaml:"replace"`
}

// LoadPlanFile reads a YAML plan file from disk.
func LoadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("epubreplace: read plan file: %w", err)
	}
	return ParsePlanFile(data)
}

// ParsePlanFile decodes a YAML plan. The search and replace lists follow
// the same shape rules as NewPlan. An omitted replace list deletes every
// search token.
func ParsePlanFile(data []byte) (*Plan, error) {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("epubreplace: parse plan file: %v: %w", err, ErrConfiguration)
	}

	mode, err := ParseMode(pf.Mode)
	if err != nil {
		return nil, err
	}

	replace := pf.Replace
	if replace == nil && len(pf.Search) > 0 {
		replace = make([]string, len(pf.Search))
	}

	return NewPlan(pf.Search, replace, PlanOptions{Mode: mode, NormalizeNFC: pf.NormalizeNFC})
}
