package llm

// Tool is a function the model may call, in OpenAI tool format.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function and its JSON Schema parameters.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// SearchBookContentTool is the retrieval tool offered to the model when no
// context has been retrieved up front. When context is pre-fetched the tool
// is withheld so the model answers from the supplied material instead of
// searching again.
func SearchBookContentTool() Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name: "search_book_content",
			Description: "Search the ROS 2 textbook for information about a topic. " +
				"Use this to find relevant content to answer user questions.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query for finding relevant content",
					},
					"chapter_id": map[string]interface{}{
						"type":        "integer",
						"description": "Optional chapter ID to scope the search",
					},
					"persona": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"Explorer", "Builder", "Engineer", "Default"},
						"description": "Optional persona to filter content",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
