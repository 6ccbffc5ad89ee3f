package chat

// Role is the author of a model message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the model conversation.
type Message struct {
	Role    Role
	Content string
	// Call is set on assistant messages that requested a function.
	Call *FunctionCall
	// CallID links a tool message to the call it answers.
	CallID string
}

// FunctionCall is a model request to run one catalog function.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// FunctionSpec describes a catalog function to the model.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Decision is the model's choice for one iteration: a final text or a call.
type Decision struct {
	Text string
	Call *FunctionCall
}

// Outcome is the terminal state of one chat request.
type Outcome string

// Outcomes.
const (
	OutcomeResponded Outcome = "responded"
	OutcomeKnowledge Outcome = "knowledge"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCappedOut Outcome = "capped_out"
	OutcomeErrored   Outcome = "errored"
)

// Reply is the result of Process. It always carries user-facing text.
type Reply struct {
	SessionID       string
	Text            string
	Outcome         Outcome
	ReframedQuery   string
	Iterations      int
	FunctionsCalled []string
}
