package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStepEnabled_Table(t *testing.T) {
	enabled := map[int]map[int]bool{
		1: {1: true, 2: true, 3: false, 4: true, 5: true, 6: false, 7: false},
		2: {1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true},
		3: {1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true},
	}
	for stage := -1; stage <= 5; stage++ {
		for step := 0; step <= 8; step++ {
			want := enabled[stage][step]
			t.Run(fmt.Sprintf("stage%d_step%d", stage, step), func(t *testing.T) {
				assert.Equal(t, want, IsStepEnabled(step, stage))
			})
		}
	}
}

func TestEnabledSteps(t *testing.T) {
	assert.Equal(t, []int{1, 2, 4, 5}, EnabledSteps(1))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, EnabledSteps(2))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, EnabledSteps(3))
	assert.Empty(t, EnabledSteps(4))
	assert.Empty(t, EnabledSteps(0))
}

func TestCatalog_Gating(t *testing.T) {
	c := DefaultCatalog()
	g := c.Gating(1)
	assert.Equal(t, "Data preparation", g.StageName)
	if assert.Len(t, g.Steps, 7) {
		assert.Equal(t, StepGate{StepID: 3, Name: "Supplier payment", Enabled: false}, g.Steps[2])
		assert.Equal(t, StepGate{StepID: 4, Name: "Payment method", Enabled: true}, g.Steps[3])
	}

	unknown := c.Gating(9)
	assert.Equal(t, "", unknown.StageName)
	for _, s := range unknown.Steps {
		assert.False(t, s.Enabled, "step %d", s.StepID)
	}
}

func TestParseCatalog_Rejects(t *testing.T) {
	_, err := ParseCatalog([]byte("schema: other\n"))
	assert.ErrorContains(t, err, "catalog.schema")

	_, err = ParseCatalog([]byte(`schema: get2b.workflow.v1
stages: [{id: 1, name: A}]
steps: [{id: 1, name: a}, {id: 3, name: b}, {id: 3, name: c}, {id: 4, name: d}, {id: 5, name: e}, {id: 6, name: f}, {id: 7, name: g}]
`))
	assert.ErrorContains(t, err, "catalog.steps[1].id must be 2")

	_, err = ParseCatalog([]byte("schema: [\n"))
	assert.ErrorContains(t, err, "decode catalog")
}
