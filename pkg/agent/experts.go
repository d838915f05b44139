package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wayfarer/pkg/config"
	"wayfarer/pkg/llm"
	"wayfarer/pkg/tools"
)

// PlannerInstruction is the default system prompt for the root planner. It is
// used when no system_prompt is configured.
const PlannerInstruction = "You are Wayfarer, a travel planning assistant. You compose complete trip plans " +
	"by delegating to your specialist agents:\n" +
	"- ask_hotels_expert: finds the best-rated hotels near a destination with their distance from the center\n" +
	"- ask_activities_expert: finds activities matching the traveler's stated interests\n" +
	"- ask_places_expert: finds the famous sights and landmarks a first-time visitor should see\n" +
	"Never ask the traveler questions. Decide from the information already given; when dates or interests " +
	"are missing, make reasonable assumptions and state them. When a query carries several intents, for " +
	"example hotels plus sights plus activities, consult every relevant specialist and address them all in " +
	"one answer. Merge the findings into a clear day-by-day plan and always mention hotel ratings and " +
	"distances when recommending accommodation. If a specialist reports an error or finds nothing, say so " +
	"honestly instead of inventing results."

const hotelsInstruction = "You are a hotel search specialist. Given a destination, use the find_hotels tool to " +
	"retrieve the top-rated hotels near its center. Recommend 5 to 7 of them, each with its rating, number " +
	"of reviews, full address, and distance in kilometers from the destination center, ordered best-rated " +
	"first. Only present hotels the tool actually returned, never invent one. If the search fails or " +
	"returns nothing, report that plainly."

const activitiesInstruction = "You are an activity search specialist. Given a destination and a list of traveler " +
	"interests, use the find_activities tool with those interests as keywords. Group the results by the " +
	"interest keyword they matched and include each place's rating and address. Prefer authentic local " +
	"experiences over generic tourist fare when both appear. If some interests produced no results, note " +
	"which ones."

const placesInstruction = "You are a sightseeing specialist. Given a destination, use the find_activities tool " +
	"with keywords like 'tourist attraction', 'landmark', and 'museum' to find the places a first-time " +
	"visitor should not miss. Recommend 5 to 10 places mixing iconic sights with lesser-known spots, with " +
	"a one or two line description of what each is known for, and avoid repeating the same category."

// Expert is a single-purpose sub-agent with its own instruction and tool set.
// It implements tools.WrappableAgent so the planner can call it as a tool.
type Expert struct {
	name        string
	description string
	instruction string
	client      llm.LLMClient
	registry    *tools.ToolRegistry
	sysCfg      *config.SystemConfig
}

// NewExpert creates a specialist agent around the given client and tools.
func NewExpert(name, description, instruction string, client llm.LLMClient, sysCfg *config.SystemConfig, tls ...tools.Tool) *Expert {
	registry := tools.NewToolRegistry()
	for _, t := range tls {
		registry.Register(t)
	}
	return &Expert{
		name:        name,
		description: description,
		instruction: instruction,
		client:      client,
		registry:    registry,
		sysCfg:      sysCfg,
	}
}

func (ex *Expert) Name() string {
	return ex.name
}

func (ex *Expert) Description() string {
	return ex.description
}

// Process runs the expert's own bounded reasoning loop and returns its final
// text answer. It never streams to the user; the planner relays the result.
func (ex *Expert) Process(ctx context.Context, request string) (string, error) {
	messages := []llm.Message{
		llm.NewSystemMessage(ex.instruction),
		llm.NewUserMessage(request),
	}

	available := make([]llm.Tool, 0)
	for _, t := range ex.registry.GetAll() {
		available = append(available, t)
	}

	maxTurns := ex.sysCfg.ExpertMaxTurns
	if maxTurns <= 0 {
		maxTurns = 4
	}

	for turn := 0; turn < maxTurns; turn++ {
		chunkCh, err := ex.client.StreamChat(ctx, messages, available)
		if err != nil {
			return "", fmt.Errorf("expert %s: %w", ex.name, err)
		}

		assistantMsg, err := collectExpertTurn(chunkCh)
		if err != nil {
			return "", fmt.Errorf("expert %s: %w", ex.name, err)
		}

		if len(assistantMsg.ToolCalls) == 0 {
			answer := strings.TrimSpace(assistantMsg.GetTextContent())
			if answer == "" {
				return "", fmt.Errorf("expert %s: empty response", ex.name)
			}
			return answer, nil
		}

		messages = append(messages, assistantMsg)
		for _, tc := range assistantMsg.ToolCalls {
			messages = append(messages, ex.runToolCall(ctx, tc))
		}
	}

	return "", fmt.Errorf("expert %s: no final answer after %d turns", ex.name, maxTurns)
}

// runToolCall executes a single tool call and wraps the result as a tool message.
func (ex *Expert) runToolCall(ctx context.Context, tc llm.ToolCall) llm.Message {
	cleanName := strings.TrimPrefix(tc.Name, "functions.")

	var blocks []llm.ContentBlock
	tool, ok := ex.registry.Get(cleanName)
	if !ok {
		slog.ErrorContext(ctx, "Expert requested unknown tool", "expert", ex.name, "tool", tc.Name)
		blocks = []llm.ContentBlock{llm.NewTextBlock(fmt.Sprintf("Error: Unknown tool '%s'", tc.Name))}
	} else {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			blocks = []llm.ContentBlock{llm.NewTextBlock(fmt.Sprintf("Error: Failed to parse tool arguments: %v", err))}
		} else {
			slog.InfoContext(ctx, "Expert executing tool", "expert", ex.name, "tool", cleanName, "args", args)
			res, err := tool.Execute(ctx, args)
			if err != nil {
				blocks = []llm.ContentBlock{llm.NewTextBlock(fmt.Sprintf("Error: Tool execution failed: %v", err))}
			} else {
				blocks = ConvertToolResult(res)
			}
		}
	}

	toolMsg := llm.NewTextMessage("tool", "")
	toolMsg.Content = blocks
	toolMsg.ToolCallID = tc.ID
	toolMsg.ToolName = tc.Name
	return toolMsg
}

// collectExpertTurn drains one StreamChat call into a single assistant message.
func collectExpertTurn(chunkCh <-chan llm.StreamChunk) (llm.Message, error) {
	msg := llm.NewAssistantMessage("")
	msg.Content = []llm.ContentBlock{}

	for chunk := range chunkCh {
		if chunk.RawError != nil {
			return msg, chunk.RawError
		}
		for _, b := range chunk.ContentBlocks {
			msg.AddContentBlock(b)
		}
		if len(chunk.ToolCalls) > 0 {
			msg.ToolCalls = append(msg.ToolCalls, chunk.ToolCalls...)
		}
		if chunk.Usage != nil {
			msg.Usage = chunk.Usage
		}
	}

	return msg, nil
}

// BuildExperts assembles the three travel specialists plus the planner's
// agent tools around a shared places backend.
func BuildExperts(client llm.LLMClient, service tools.PlacesService, sysCfg *config.SystemConfig) []tools.Tool {
	geocode := tools.NewGeocodeTool(service)
	hotels := tools.NewFindHotelsTool(service, sysCfg)
	activities := tools.NewFindActivitiesTool(service, sysCfg)

	hotelsExpert := NewExpert(
		"hotels_expert",
		"Finds the top-rated hotels near a destination, with ratings, review counts, and distance from the center. Send it the destination and any hotel preferences.",
		hotelsInstruction,
		client, sysCfg,
		geocode, hotels,
	)

	activitiesExpert := NewExpert(
		"activities_expert",
		"Finds activities near a destination that match the traveler's interests. Send it the destination and a list of interests.",
		activitiesInstruction,
		client, sysCfg,
		geocode, activities,
	)

	placesExpert := NewExpert(
		"places_expert",
		"Finds the famous sights and landmarks a first-time visitor to a destination should see. Send it the destination.",
		placesInstruction,
		client, sysCfg,
		geocode, activities,
	)

	return []tools.Tool{
		tools.NewAgentTool(hotelsExpert),
		tools.NewAgentTool(activitiesExpert),
		tools.NewAgentTool(placesExpert),
	}
}
