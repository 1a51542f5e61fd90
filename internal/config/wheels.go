package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/wheel8/internal/wheel"
)

// WheelDef is one wheel in a definition file.
type WheelDef struct {
	ID          string `yaml:"id"`
	Multipliers []int  `yaml:"multipliers"`
}

// Config validates the definition and builds its wheel config.
func (d WheelDef) Config() (wheel.Config, error) {
	if err := wheel.ValidateID(d.ID); err != nil {
		return wheel.Config{}, err
	}
	values, err := wheel.ParseMultipliers(d.Multipliers)
	if err != nil {
		return wheel.Config{}, fmt.Errorf("wheel %s: %w", d.ID, err)
	}
	return wheel.NewConfig(values)
}

type wheelFile struct {
	Wheels []WheelDef `yaml:"wheels"`
}

// ParseWheels reads a YAML document of the form
//
//	wheels:
//	  - id: main
//	    multipliers: [0, 1, 2, 3, 5, 10, 20, 50]
func ParseWheels(r io.Reader) ([]WheelDef, error) {
	var f wheelFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("wheel file is empty")
		}
		return nil, fmt.Errorf("decode wheel file: %w", err)
	}

	seen := make(map[string]bool, len(f.Wheels))
	for _, d := range f.Wheels {
		if _, err := d.Config(); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("wheel %s is defined twice", d.ID)
		}
		seen[d.ID] = true
	}
	return f.Wheels, nil
}

// LoadWheels reads and validates the wheel definition file at path.
func LoadWheels(path string) ([]WheelDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wheel file: %w", err)
	}
	defer f.Close()
	return ParseWheels(f)
}
