package protocol

import "encoding/json"

// TodoStatus is the state of one entry in an agent task list.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoItem is one entry from a TodoWrite invocation.
type TodoItem struct {
	Content    string     `json:"content"`
	ActiveForm string     `json:"activeForm,omitempty"`
	Status     TodoStatus `json:"status"`
}

// ToolInput is the decoded input of a tool invocation. The concrete type
// depends on the tool name; tools without a dedicated shape decode to
// GenericInput.
type ToolInput interface {
	isToolInput()
}

// BashInput is the input of a Bash invocation.
type BashInput struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// EditInput is the input of an Edit invocation.
type EditInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// WriteInput is the input of a Write invocation.
type WriteInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// ReadInput is the input of a Read or View invocation.
type ReadInput struct {
	FilePath string `json:"file_path"`
}

// SearchInput is the input of a Grep or Glob invocation.
type SearchInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// TaskInput is the input of a Task invocation, which delegates work to a
// nested sub-agent. Tool calls made by the sub-agent arrive tagged with the
// Task invocation's id as their parent scope.
type TaskInput struct {
	Description  string `json:"description"`
	Prompt       string `json:"prompt,omitempty"`
	SubagentType string `json:"subagent_type,omitempty"`
}

// TodoWriteInput is the input of a TodoWrite invocation.
type TodoWriteInput struct {
	Todos []TodoItem `json:"todos"`
}

// GenericInput holds the input of a tool with no dedicated shape.
type GenericInput map[string]any

func (BashInput) isToolInput()      {}
func (EditInput) isToolInput()      {}
func (WriteInput) isToolInput()     {}
func (ReadInput) isToolInput()      {}
func (SearchInput) isToolInput()    {}
func (TaskInput) isToolInput()      {}
func (TodoWriteInput) isToolInput() {}
func (GenericInput) isToolInput()   {}

// IsScopeOpener reports whether a tool invocation with this name opens a
// sub-agent scope that later tool calls can attach to.
func IsScopeOpener(name string) bool {
	return name == "Task" || name == "task"
}

// DecodeToolInput decodes a tool input payload into its typed shape based on
// the tool name. Malformed payloads fall back to GenericInput, and payloads
// that are not JSON objects at all decode to an empty GenericInput; the
// caller always gets something renderable.
func DecodeToolInput(name string, raw json.RawMessage) ToolInput {
	if len(raw) == 0 {
		return GenericInput{}
	}

	switch name {
	case "Bash", "bash":
		var in BashInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	case "Edit", "edit":
		var in EditInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	case "Write", "write":
		var in WriteInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	case "Read", "read", "View", "view":
		var in ReadInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	case "Grep", "grep", "Glob", "glob":
		var in SearchInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	case "Task", "task":
		var in TaskInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	case "TodoWrite":
		var in TodoWriteInput
		if err := json.Unmarshal(raw, &in); err == nil {
			return in
		}
	}

	var generic GenericInput
	if err := json.Unmarshal(raw, &generic); err != nil {
		return GenericInput{}
	}
	return generic
}
