package orchestrator

const defaultMaxRounds = 5

// defaultSystemPrompt is the fixed instruction block sent on every model
// call. It states the assistant's purpose and the tool-usage policy: tools
// are for concrete resource questions only, and tool output must be reported
// exactly as returned.
const defaultSystemPrompt = "You are a helpful AI assistant with access to tools for querying " +
	"Google Cloud resources. Only use tools when the user explicitly asks for specific cloud " +
	"resource information. For greetings, casual conversation, or questions about yourself and " +
	"your capabilities, respond naturally without calling any tools. When you receive tool " +
	"results, read them carefully and report the exact information provided - do not make " +
	"assumptions or infer information that is not explicitly stated. Machine types like " +
	"'e2-standard-4', 'n1-standard-2', 'n2-standard-4', etc. are different and should be " +
	"reported exactly as shown. If asked about a specific machine type, check the actual " +
	"machine_type field and only confirm if it matches exactly."

// Config holds orchestration policy parameters.
type Config struct {
	// MaxRounds bounds the resolve loop; the turn aborts with
	// BudgetExceededError after this many rounds without a terminal answer.
	// Zero means the default.
	MaxRounds int `json:"max_rounds,omitempty"`
	// SystemPrompt overrides the built-in instruction block.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// DecisionTemperature applies to tool-decision round-trips. Zero keeps
	// tool selection deterministic and is the default.
	DecisionTemperature float32 `json:"decision_temperature,omitempty"`
	// AnswerTemperature applies to the final streaming answer. The call
	// sites are configured independently; both default to zero.
	AnswerTemperature float32 `json:"answer_temperature,omitempty"`
}

// DefaultConfig returns the default orchestration configuration.
func DefaultConfig() Config {
	return Config{
		MaxRounds:    defaultMaxRounds,
		SystemPrompt: defaultSystemPrompt,
	}
}

// Merge applies non-zero values from source into c. Temperatures merge only
// when positive; zero is the deterministic default at both call sites.
func (c *Config) Merge(source *Config) {
	if source.MaxRounds > 0 {
		c.MaxRounds = source.MaxRounds
	}
	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
	if source.DecisionTemperature > 0 {
		c.DecisionTemperature = source.DecisionTemperature
	}
	if source.AnswerTemperature > 0 {
		c.AnswerTemperature = source.AnswerTemperature
	}
}
