package domain

type ScenarioEventKind string

const (
	EventScenarioCreated  ScenarioEventKind = "scenario_created"
	EventScenarioSelected ScenarioEventKind = "scenario_selected"
	EventScenarioDeleted  ScenarioEventKind = "scenario_deleted"
)

// ScenarioEvent is published to managers after a branch change commits.
type ScenarioEvent struct {
	Kind        ScenarioEventKind
	ProjectID   string
	ScenarioID  string
	Name        string
	CreatorRole CreatorRole
	Actor       string
	Removed     int
}
