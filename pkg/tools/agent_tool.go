package tools

import (
	"context"
	"fmt"
)

// WrappableAgent is an interface that represents an agent that can be wrapped
// as a tool. This avoids direct imports of the agent package which would
// create an import cycle.
type WrappableAgent interface {
	Name() string
	Description() string
	Process(ctx context.Context, request string) (string, error)
}

// AgentTool exposes a specialist agent as a regular tool, so the planner
// can delegate sub-tasks to it mid-conversation.
type AgentTool struct {
	agent WrappableAgent
}

// NewAgentTool creates a new tool that wraps an agent.
func NewAgentTool(agent WrappableAgent) *AgentTool {
	return &AgentTool{agent: agent}
}

func (t *AgentTool) Name() string {
	return "ask_" + t.agent.Name()
}

func (t *AgentTool) Description() string {
	return t.agent.Description()
}

func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"request": map[string]any{
			"type":        "string",
			"description": "The request to send to the " + t.agent.Name() + " agent",
		},
	}
}

func (t *AgentTool) RequiredParameters() []string {
	return []string{"request"}
}

func (t *AgentTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	request, ok := args["request"].(string)
	if !ok || request == "" {
		// Some models pass structured arguments instead of a plain request.
		encoded, err := json.MarshalToString(args)
		if err != nil {
			return nil, fmt.Errorf("missing string parameter 'request'")
		}
		request = encoded
	}

	response, err := t.agent.Process(ctx, request)
	if err != nil {
		return &ToolResult{
			Content: []ContentBlock{
				{Type: "text", Text: "Error from " + t.agent.Name() + ": " + err.Error()},
			},
		}, nil
	}

	return &ToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: response},
		},
		Details: map[string]any{
			"agent": t.agent.Name(),
		},
	}, nil
}
