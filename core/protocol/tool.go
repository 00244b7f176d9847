package protocol

// Tool is a static registry entry describing one invocable tool: its unique
// name, the description fed to the model as decision context, and a JSON
// Schema object describing the accepted arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
