package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spigell/cv-scout/internal/mcp"
	"go.uber.org/zap"
)

const extractToolName = "extract_profile"

//go:embed prompt.md
var extractPrompt string

// contentGenerator is the slice of the model client the tools need.
type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

var extractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"cvText": map[string]any{
			"type":        "string",
			"description": "The raw text of the resume",
			"minLength":   1,
		},
	},
	"required": []string{"cvText"},
}

func newExtractTool(logger *zap.Logger, generator contentGenerator) (tool, error) {
	schema, err := compileSchema(extractSchema)
	if err != nil {
		return tool{}, fmt.Errorf("compile %s schema: %w", extractToolName, err)
	}

	descriptor := mcp.Tool{
		Name:        extractToolName,
		Description: "Extract skills, experience, location, and a probable job title from resume text",
		InputSchema: extractSchema,
	}

	handle := func(ctx context.Context, args map[string]any) mcp.ToolResult {
		var input struct {
			CvText string `mapstructure:"cvText"`
		}
		if err := mapstructure.Decode(args, &input); err != nil {
			return errorResult(fmt.Sprintf("decode arguments: %v", err))
		}

		raw, err := generator.GenerateContent(ctx, extractPrompt, input.CvText)
		if err != nil {
			logger.Warn("profile generation failed", zap.Error(err))
			return errorResult(fmt.Sprintf("profile generation failed: %v", err))
		}

		return mcp.ToolResult{Content: []mcp.Content{{Type: "text", Text: raw}}}
	}

	return tool{descriptor: descriptor, schema: schema, handle: handle}, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}

	return compiler.Compile("schema.json")
}
