package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const CatalogSchemaV1 = "get2b.workflow.v1"

//go:embed workflow.yaml
var defaultCatalog []byte

type Catalog struct {
	Schema string         `yaml:"schema"`
	Stages []CatalogEntry `yaml:"stages"`
	Steps  []CatalogEntry `yaml:"steps"`
}

type CatalogEntry struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// DefaultCatalog returns the built-in stage and step names.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded workflow catalog: %v", err))
	}
	return c
}

func ParseCatalog(input []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(input, &c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Schema) != CatalogSchemaV1 {
		return fmt.Errorf("catalog.schema must be %q", CatalogSchemaV1)
	}
	if len(c.Steps) != MaxStep {
		return fmt.Errorf("catalog.steps must list %d steps", MaxStep)
	}
	if len(c.Stages) == 0 {
		return errors.New("catalog.stages must be non-empty")
	}
	for i, step := range c.Steps {
		if step.ID != i+1 {
			return fmt.Errorf("catalog.steps[%d].id must be %d", i, i+1)
		}
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("catalog.steps[%d].name is required", i)
		}
	}
	seen := make(map[int]struct{}, len(c.Stages))
	for i, stage := range c.Stages {
		if _, ok := seen[stage.ID]; ok {
			return fmt.Errorf("catalog.stages[%d].id must be unique (duplicate %d)", i, stage.ID)
		}
		seen[stage.ID] = struct{}{}
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("catalog.stages[%d].name is required", i)
		}
	}
	return nil
}

func (c Catalog) StageName(stage int) string {
	for _, s := range c.Stages {
		if s.ID == stage {
			return s.Name
		}
	}
	return ""
}

type StepGate struct {
	StepID  int
	Name    string
	Enabled bool
}

type StageGating struct {
	Stage     int
	StageName string
	Steps     []StepGate
}

// Gating describes every step of the catalog for stage.
func (c Catalog) Gating(stage int) StageGating {
	out := StageGating{
		Stage:     stage,
		StageName: c.StageName(stage),
		Steps:     make([]StepGate, 0, len(c.Steps)),
	}
	for _, step := range c.Steps {
		out.Steps = append(out.Steps, StepGate{
			StepID:  step.ID,
			Name:    step.Name,
			Enabled: IsStepEnabled(step.ID, stage),
		})
	}
	return out
}
