package tools

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mazerunner/harness/pkg/apperrors"
)

// actionArgs is the shape every tool call's Arguments decode into.
type actionArgs struct {
	ExperimentID string `json:"experimentId"`
	Reasoning    string `json:"reasoning"`
}

// ServerName is the MCP server implementation name advertised to clients.
const ServerName = "mazerunner-tools"

// NewServer builds the in-process MCP server exposing the five maze
// tools, backed by d. turnNumber is supplied by the caller per call — the
// agent invoker stamps every action with the enclosing turn; it is not
// derived here.
func NewServer(d *Dispatcher, turnNumber func() int) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name: ServerName, Version: "1",
	}, nil)

	for _, dir := range []Direction{North, South, East, West} {
		dir := dir
		name := "move_" + string(dir)
		server.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: toolDescriptions[name],
			InputSchema: actionInputSchema,
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			args, err := decodeArgs(req)
			if err != nil {
				return nil, err
			}
			result, err := d.Move(ctx, args.ExperimentID, dir, turnNumber(), args.Reasoning)
			if err != nil {
				return nil, err
			}
			return jsonResult(result)
		})
	}

	server.AddTool(&mcpsdk.Tool{
		Name:        "recall",
		Description: toolDescriptions["recall"],
		InputSchema: actionInputSchema,
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args, err := decodeArgs(req)
		if err != nil {
			return nil, err
		}
		result, err := d.Recall(ctx, args.ExperimentID, turnNumber(), args.Reasoning)
		if err != nil {
			return nil, err
		}
		return jsonResult(result)
	})

	return server
}

// decodeArgs parses and validates a tool call's arguments. Failures here
// are malformed-input, not dispatch failures — returned as a classified
// TOOL_INVALID_INPUT error so the invoker can distinguish "the model sent
// garbage" from "the database is unreachable".
func decodeArgs(req *mcpsdk.CallToolRequest) (*actionArgs, error) {
	var args actionArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, apperrors.New(apperrors.KindToolInvalidInput, fmt.Errorf("decoding tool arguments: %w", err))
	}
	if args.ExperimentID == "" {
		return nil, apperrors.Newf(apperrors.KindToolInvalidInput, "missing required argument: experimentId")
	}
	return &args, nil
}

func jsonResult(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.New(apperrors.KindToolDispatchFailed, err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}
