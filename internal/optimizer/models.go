package optimizer

// Model describes a target model's prompt budget and pricing.
type Model struct {
	ID           string  `json:"id"`
	OptimalSize  int     `json:"optimalSize"` // page-context tokens
	ContextLimit int     `json:"contextLimit"`
	CostPerToken float64 `json:"costPerToken"`
}

// Model identifiers.
const (
	ModelChat     = "chat"
	ModelReasoner = "reasoner"
)

var knownModels = map[string]Model{
	ModelChat: {
		ID:           ModelChat,
		OptimalSize:  4000,
		ContextLimit: 16000,
		CostPerToken: 0.00000014,
	},
	ModelReasoner: {
		ID:           ModelReasoner,
		OptimalSize:  8000,
		ContextLimit: 32000,
		CostPerToken: 0.00000055,
	},
}

// LookupModel returns the model for id. Unknown ids resolve to chat; ok
// reports whether id was known.
func LookupModel(id string) (m Model, ok bool) {
	m, ok = knownModels[id]
	if !ok {
		m = knownModels[ModelChat]
	}
	return m, ok
}

// Weights combines the relevance axes. UserQuery is not folded into
// Relevance.Overall; callers that blend page relevance with other signals
// (see the builder's history ranking) apply it.
type Weights struct {
	MainContent float64 `json:"mainContent"`
	Metadata    float64 `json:"metadata"`
	KeyPoints   float64 `json:"keyPoints"`
	UserQuery   float64 `json:"userQuery"`
}

// DefaultWeights are the standard relevance weights.
var DefaultWeights = Weights{
	MainContent: 0.4,
	Metadata:    0.1,
	KeyPoints:   0.2,
	UserQuery:   0.3,
}
