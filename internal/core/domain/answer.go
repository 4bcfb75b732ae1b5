package domain

type AgentLimits struct {
	MaxIterations int
	RetrieverTopK int
}

// AgentStep is one planner decision of the reasoning loop.
type AgentStep struct {
	Type   string         `json:"type"`
	Tool   string         `json:"tool,omitempty"`
	Answer string         `json:"answer,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

type AgentToolEvent struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Status string `json:"status"`
	Output string `json:"output"`
}

type QueryAnswer struct {
	Answer       string           `json:"answer"`
	Iterations   int              `json:"iterations"`
	ToolsInvoked []string         `json:"tools_invoked,omitempty"`
	ToolEvents   []AgentToolEvent `json:"tool_events,omitempty"`
	ParseErrors  int              `json:"parse_errors,omitempty"`
	StopReason   string           `json:"stop_reason"`
}
