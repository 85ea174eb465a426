package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"walldraft/internal/domain"
)

// PlanSeed is the YAML document listing plans to create at startup.
//
//	plans:
//	  - name: Free
//	    isDefault: true
//	    limits: {designsPerMonth: 1, imageUploadsPerDesign: 3}
//	  - name: Pro
//	    exportDrafts: true
//	    limits: {designsPerMonth: -1, imageUploadsPerDesign: -1}
type PlanSeed struct {
	Plans []domain.PlanInput `yaml:"plans"`
}

// LoadPlanSeed reads and validates a plan seed file.
func LoadPlanSeed(path string) (*PlanSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan seed: %w", err)
	}

	var seed PlanSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse plan seed %s: %w", path, err)
	}

	seen := make(map[string]bool, len(seed.Plans))
	for i, p := range seed.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plan seed entry %d: name is required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("plan seed entry %d: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if err := p.Limits.Validate(); err != nil {
			return nil, fmt.Errorf("plan seed entry %q: %w", p.Name, err)
		}
	}
	return &seed, nil
}
