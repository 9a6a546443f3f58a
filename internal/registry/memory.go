package registry

// Tool names understood by the crew pipeline.
const (
	ToolChart = "ChartTool"
	ToolFile  = "FileTool"
)

// MemoryRegistry is a fixed, read-only crew layout.
type MemoryRegistry struct {
	manager Agent
	stages  []Agent
	byKey   map[string]Agent
}

// NewMemoryRegistry creates a registry from an explicit manager and stage list.
func NewMemoryRegistry(manager Agent, stages []Agent) *MemoryRegistry {
	r := &MemoryRegistry{
		manager: manager,
		stages:  append([]Agent(nil), stages...),
		byKey:   make(map[string]Agent, len(stages)+1),
	}
	r.byKey[manager.Key] = manager
	for _, s := range stages {
		r.byKey[s.Key] = s
	}
	return r
}

// NewDefaultRegistry builds the market-research crew: a manager on the
// orchestrator model and four specialists on the specialist model.
func NewDefaultRegistry(managerModel, specialistModel string) *MemoryRegistry {
	mm := ModelName(managerModel)
	sm := ModelName(specialistModel)

	manager := Agent{
		Key:   "manager",
		Role:  "Senior Research Director",
		Model: mm,
		VM:    VenueOrchestrator,
		Goal:  "Produce a comprehensive, well-structured market analysis with data visualizations",
		Backstory: "You are a senior research director at a leading technology advisory firm. " +
			"You decompose complex research questions into actionable tasks, delegate effectively, " +
			"and synthesize diverse inputs into coherent, insight-driven reports.",
	}

	stages := []Agent{
		{
			Key:   "researcher",
			Role:  "Market Research Specialist",
			Model: sm,
			VM:    VenueSpecialist,
			Goal:  "Gather comprehensive information on key players, trends and competitive dynamics",
			Backstory: "You are a meticulous market research specialist. You always structure " +
				"findings clearly with sections and bullet points.",
		},
		{
			Key:   "analyst",
			Role:  "Data Analyst",
			Model: sm,
			VM:    VenueSpecialist,
			Goal:  "Transform research into quantitative insights and chart-ready datasets",
			Backstory: "You transform qualitative research into quantitative insights. You ALWAYS output " +
				"chart data as JSON blocks with these exact fields: chart_type (bar/horizontal_bar/pie/line), " +
				"title, labels (list of strings), values (list of numbers), unit, filename.",
		},
		{
			Key:   "visualizer",
			Role:  "Data Visualization Specialist",
			Model: sm,
			VM:    VenueSpecialist,
			Goal:  "Create 2-4 clear, professional charts from the analyst's data",
			Backstory: "You create presentation-ready charts. For each JSON dataset from the analyst, " +
				"call ChartTool with the exact JSON object. Always generate all charts requested.",
			Tools: []string{ToolChart},
		},
		{
			Key:   "writer",
			Role:  "Report Writer",
			Model: sm,
			VM:    VenueSpecialist,
			Goal:  "Produce a polished markdown report with executive summary, analysis, chart references and recommendations",
			Backstory: "You create executive-ready reports. You reference charts with markdown image syntax: " +
				"![Chart Title](./charts/filename.png). Sections: Executive Summary, Key Players, " +
				"Market Drivers, Strategic Position, Recommendations.",
			Tools: []string{ToolFile},
		},
	}

	return NewMemoryRegistry(manager, stages)
}

// Manager returns the orchestrating agent.
func (r *MemoryRegistry) Manager() Agent {
	return r.manager
}

// Stages returns a copy of the stage list in pipeline order.
func (r *MemoryRegistry) Stages() []Agent {
	return append([]Agent(nil), r.stages...)
}

// Get returns an agent by key.
func (r *MemoryRegistry) Get(key string) (Agent, error) {
	a, ok := r.byKey[key]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return a, nil
}

// List returns the manager followed by every stage agent.
func (r *MemoryRegistry) List() []Agent {
	out := make([]Agent, 0, len(r.stages)+1)
	out = append(out, r.manager)
	return append(out, r.stages...)
}

var _ Registry = (*MemoryRegistry)(nil)
