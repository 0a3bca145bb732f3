// Package invoker is the agent invoker: it runs one turn of model↔tool
// interaction — potentially many internal model/tool round trips — and
// reports back a single per-turn outcome and token delta to its caller
// (the turn loop scheduler).
//
// Follows the overall call-model/dispatch-tool-calls/loop shape of an
// iterating agent controller, but deliberately drops any retry-on-error or
// forced-conclusion behavior: a failed turn here has no retries, no
// backoff — the scheduler surfaces the failure and finalizes the
// experiment, rather than recovering and continuing.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mazerunner/harness/pkg/apperrors"
	"github.com/mazerunner/harness/pkg/config"
	"github.com/mazerunner/harness/pkg/llmclient"
	"github.com/mazerunner/harness/pkg/tools"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	// OutcomeYielded means the model's most recent response carried no
	// tool calls.
	OutcomeYielded Outcome = "yielded"
	// OutcomeCapped means max_actions_per_turn was reached mid-response;
	// any remaining tool calls in that response were discarded.
	OutcomeCapped Outcome = "capped"
	// OutcomeGoalReached means a movement landed on the goal tile.
	OutcomeGoalReached Outcome = "goal_reached"
)

// TurnInput is everything RunTurn needs: experiment identity (reduced to
// ExperimentID + GoalDescription here — the caller owns the full row),
// current position, turn_number, prompt text, tool schema (fetched live
// from the connection), model_config, and model endpoint descriptor (bound
// into the llmclient.Client the Invoker holds).
type TurnInput struct {
	ExperimentID    string
	TurnNumber      int
	CurrentPosition tools.Position
	GoalDescription string
	PromptText      string
	ModelConfig     *config.ModelConfig
}

// TurnResult is what RunTurn returns to the scheduler: the outcome, how
// many tool calls actually executed, and the per-turn token/cost delta,
// accounted per-turn rather than per-tool-call.
type TurnResult struct {
	Outcome           Outcome
	ActionsExecuted   int
	DeltaInputTokens  int
	DeltaOutputTokens int
	DeltaCostMicros   int64
}

// toolConnection is the subset of *tools.Connection the Invoker needs —
// narrowed to an interface so tests can substitute a stub without standing
// up a real MCP server/database pair for every scenario.
type toolConnection interface {
	ListTools(ctx context.Context) ([]*mcpsdk.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, error)
}

// Invoker runs turns against one model endpoint, dispatching tool calls
// through an already-connected MCP session.
type Invoker struct {
	llm       llmclient.Client
	conn      toolConnection
	costRates *config.CostRegistry
	modelName string
}

// New builds an Invoker. conn must already be connected (tools.Connect).
func New(llm llmclient.Client, conn *tools.Connection, costRates *config.CostRegistry, modelName string) *Invoker {
	return &Invoker{llm: llm, conn: conn, costRates: costRates, modelName: modelName}
}

// RunTurn implements the per-turn call-model/dispatch-tools protocol.
func (inv *Invoker) RunTurn(ctx context.Context, input TurnInput) (*TurnResult, error) {
	advertised, err := inv.conn.ListTools(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.KindToolDispatchFailed, err)
	}
	defs := llmclient.ToolDefinitionsFromMCP(advertised)

	messages := []llmclient.Message{{Role: llmclient.RoleUser, Content: buildInitialMessage(input)}}
	result := &TurnResult{}

	for {
		resp, err := inv.llm.Generate(ctx, &llmclient.GenerateInput{
			Messages: messages,
			Tools:    defs,
			Options: llmclient.InferenceOptions{
				NumCtx:        input.ModelConfig.NumCtx,
				Temperature:   input.ModelConfig.Temperature,
				RepeatPenalty: input.ModelConfig.RepeatPenalty,
				NumPredict:    input.ModelConfig.NumPredict,
			},
		})
		if err != nil {
			return nil, err
		}
		result.DeltaInputTokens += resp.InputTokens
		result.DeltaOutputTokens += resp.OutputTokens

		if resp.Yielded() {
			result.Outcome = OutcomeYielded
			break
		}

		messages = append(messages, llmclient.Message{
			Role:      llmclient.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		capped := false
		goalReached := false

		for _, tc := range resp.ToolCalls {
			if result.ActionsExecuted >= input.ModelConfig.MaxActionsPerTurn {
				capped = true
				break
			}

			args, err := decodeArguments(tc.Arguments)
			if err != nil {
				return nil, apperrors.New(apperrors.KindToolInvalidInput, err)
			}

			callResult, err := inv.conn.CallTool(ctx, tc.Name, args)
			if err != nil {
				return nil, reclassifyToolError(err)
			}

			messages = append(messages, llmclient.ToolResultMessage(tc, callResult))
			result.ActionsExecuted++

			if isMovementTool(tc.Name) && movedOntoGoal(callResult) {
				goalReached = true
				break
			}
		}

		if goalReached {
			result.Outcome = OutcomeGoalReached
			break
		}
		if capped {
			result.Outcome = OutcomeCapped
			break
		}
	}

	if input.ModelConfig != nil && inv.costRates != nil {
		result.DeltaCostMicros = inv.costRates.CostMicros(inv.modelName, result.DeltaInputTokens, result.DeltaOutputTokens)
	}
	return result, nil
}

func buildInitialMessage(input TurnInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "experiment_id: %s\n", input.ExperimentID)
	fmt.Fprintf(&b, "turn_number: %d\n", input.TurnNumber)
	fmt.Fprintf(&b, "current_position: (%d, %d)\n", input.CurrentPosition.X, input.CurrentPosition.Y)
	if input.GoalDescription != "" {
		fmt.Fprintf(&b, "goal: %s\n", input.GoalDescription)
	}
	b.WriteString("\n")
	b.WriteString(input.PromptText)
	fmt.Fprintf(&b, "\n\nEvery tool call must include \"experimentId\": %q.\n", input.ExperimentID)
	return b.String()
}

func isMovementTool(name string) bool {
	return strings.HasPrefix(name, "move_")
}

func movedOntoGoal(result *mcpsdk.CallToolResult) bool {
	if result == nil || len(result.Content) == 0 {
		return false
	}
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	if !ok {
		return false
	}
	var mv tools.MoveResult
	if err := json.Unmarshal([]byte(text.Text), &mv); err != nil {
		return false
	}
	return mv.Success && mv.Goal
}

func decodeArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decoding tool call arguments: %w", err)
	}
	return args, nil
}

// reclassifyToolError recovers a dispatcher's apperrors.Kind from an MCP
// CallTool error. The in-memory transport still round-trips tool errors
// as a generic JSON-RPC failure, which loses the structured
// *apperrors.ClassifiedError the dispatcher raised (see pkg/tools/server.go)
// — but ClassifiedError.Error() renders as "<KIND>: <cause>", so the kind
// survives as the error message's prefix even after that serialization.
// Anything unrecognized defaults to TOOL_DISPATCH_FAILED.
func reclassifyToolError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, string(apperrors.KindToolInvalidInput)) {
		return apperrors.New(apperrors.KindToolInvalidInput, err)
	}
	return apperrors.New(apperrors.KindToolDispatchFailed, err)
}
