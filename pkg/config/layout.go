package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WardLayout describes the beds to provision for one ward
type WardLayout struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name"`
	WardType string      `yaml:"type"`
	Beds     []BedLayout `yaml:"beds"`
	// Count provisions this many untagged beds when Beds is empty
	Count int `yaml:"count"`
}

// BedLayout describes a single bed
type BedLayout struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label"`
	Equipment string `yaml:"equipment"`
}

// HospitalLayout is the root of a layout file
type HospitalLayout struct {
	Wards []WardLayout `yaml:"wards"`
}

// LoadWardLayout reads a YAML hospital layout
func LoadWardLayout(path string) (*HospitalLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ward layout: %w", err)
	}
	return ParseWardLayout(data)
}

// ParseWardLayout decodes and validates a YAML hospital layout
func ParseWardLayout(data []byte) (*HospitalLayout, error) {
	var layout HospitalLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse ward layout: %w", err)
	}

	seen := make(map[string]struct{})
	for i := range layout.Wards {
		ward := &layout.Wards[i]
		if ward.ID == "" {
			return nil, fmt.Errorf("ward %d has no id", i)
		}
		if _, dup := seen[ward.ID]; dup {
			return nil, fmt.Errorf("ward %s declared twice", ward.ID)
		}
		seen[ward.ID] = struct{}{}
		if ward.Name == "" {
			ward.Name = ward.ID
		}
		if len(ward.Beds) == 0 {
			for n := 1; n <= ward.Count; n++ {
				ward.Beds = append(ward.Beds, BedLayout{ID: fmt.Sprintf("%s-%03d", ward.ID, n)})
			}
		}
		for j := range ward.Beds {
			if ward.Beds[j].ID == "" {
				return nil, fmt.Errorf("ward %s bed %d has no id", ward.ID, j)
			}
		}
	}
	return &layout, nil
}
