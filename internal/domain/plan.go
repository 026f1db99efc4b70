package domain

// Plan is a base project definition: the task graph and the agent roster a
// run starts from, before any overlay is applied.
type Plan struct {
	ProjectID string  `json:"project_id"`
	VersionID string  `json:"version_id,omitempty"`
	Tasks     []Task  `json:"tasks"`
	Agents    []Agent `json:"agents"`
}
