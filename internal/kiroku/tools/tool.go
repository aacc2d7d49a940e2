// Package tools provides the tools the model may call during a chat turn
// and the registry that exposes them to the router.
//
// The router forwards Registry.Definitions to the provider's function-calling
// protocol. When the model asks for a tool, Registry.Invoke decodes the JSON
// arguments, validates them against the tool's parameter schema and runs
// the tool. Tool results are plain text quoted back to the model.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Kiroku/internal/kiroku/llm"
)

var (
	// ErrUnknownTool is returned by Invoke for unregistered names.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrInvalidArguments is returned when arguments are not a JSON object
	// or fail schema validation.
	ErrInvalidArguments = errors.New("tools: invalid arguments")
)

// Tool is implemented by every tool.
type Tool interface {
	// Name is the function name the model calls.
	Name() string
	// Description tells the model when to use the tool.
	Description() string
	// Parameters is the JSON Schema of the arguments object.
	Parameters() map[string]any
	// Invoke runs the tool with decoded, validated arguments.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the registered tools. Populate it at startup; it is not
// safe to Register concurrently with lookups.
type Registry struct {
	tools map[string]entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds t. It panics on a duplicate name or an uncompilable
// parameter schema, both of which are programming errors.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, dup := r.tools[name]; dup {
		panic("tools: duplicate tool registration: " + name)
	}
	schema, err := compileSchema(name, t.Parameters())
	if err != nil {
		panic(fmt.Sprintf("tools: %s: %v", name, err))
	}
	r.tools[name] = entry{tool: t, schema: schema}
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the model-facing definitions, sorted by name.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name].tool
		defs = append(defs, llm.NewToolDefinition(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}

// Invoke runs the named tool with raw JSON arguments. Empty arguments are
// treated as an empty object.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string) (string, error) {
	e, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	var decoded any = map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &decoded); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
	}
	if err := e.schema.Validate(decoded); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: %s: arguments must be a JSON object", ErrInvalidArguments, name)
	}
	return e.tool.Invoke(ctx, args)
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameter schema: %w", err)
	}
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("add parameter schema: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return schema, nil
}

// stringArg returns args[key] as a string.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
