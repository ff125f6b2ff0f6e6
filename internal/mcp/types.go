package mcp

import "fmt"

// ToolDescriptor is a tool as advertised by tools/list.
type ToolDescriptor struct {
	Name        string
	Description string
}

// ContentBlock is a single content item in a tools/call result. Text is
// only populated for blocks of type "text".
type ContentBlock struct {
	Type string
	Text string
}

// ToolResult is the outcome of a tools/call.
type ToolResult struct {
	Content []ContentBlock
	IsError bool
}

// FirstText returns the text of the first content block. It fails if the
// result is empty or the first block carries no text.
func (r *ToolResult) FirstText() (string, error) {
	if len(r.Content) == 0 {
		return "", fmt.Errorf("tool returned no content")
	}
	first := r.Content[0]
	if first.Type != "text" {
		return "", fmt.Errorf("first content block is %s, not text", first.Type)
	}
	return first.Text, nil
}

// FindTool returns the tool named exactly name, or ErrToolNotFound.
func FindTool(tools []ToolDescriptor, name string) (ToolDescriptor, error) {
	for _, t := range tools {
		if t.Name == name {
			return t, nil
		}
	}
	return ToolDescriptor{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}
