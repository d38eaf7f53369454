package domain

import "time"

// Project is the unit of procurement work that moves through the stages
// and may branch into scenarios.
type Project struct {
	ID                  string
	Name                string
	CurrentStage        int
	ScenarioModeEnabled bool
	ActiveScenarioID    *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
