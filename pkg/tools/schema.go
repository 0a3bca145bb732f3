package tools

import "encoding/json"

// actionInputSchema is the JSON Schema shared by all five tools, the tool
// schema returned to models: an object with a required experimentId and
// an optional reasoning string.
//
// experimentId is typed as a string here rather than the integer the
// source material describes, because this implementation's experiment
// identifiers are UUIDs (see store.NewExperimentID) — documented as a
// deliberate deviation in DESIGN.md, not an oversight.
var actionInputSchema = mustSchema(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"experimentId": map[string]any{
			"type":        "string",
			"description": "The experiment this tool call belongs to.",
		},
		"reasoning": map[string]any{
			"type":        "string",
			"description": "Optional free-text explanation of why this action was chosen.",
		},
	},
	"required": []string{"experimentId"},
})

func mustSchema(v map[string]any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// toolDescriptions names every tool's Description field, shown to the
// model alongside its schema.
var toolDescriptions = map[string]string{
	"move_north": "Attempt to move one tile north (y-1). Fails if blocked by a wall or the maze edge.",
	"move_south": "Attempt to move one tile south (y+1). Fails if blocked by a wall or the maze edge.",
	"move_east":  "Attempt to move one tile east (x+1). Fails if blocked by a wall or the maze edge.",
	"move_west":  "Attempt to move one tile west (x-1). Fails if blocked by a wall or the maze edge.",
	"recall":     "Return previously observed tiles without moving. Subject to a cooldown measured in moves since the last recall.",
}
