package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

func TestSystemPrompt(t *testing.T) {
	adapter := NewAdapter()

	t.Run("FourDistinctPrompts", func(t *testing.T) {
		personas := []types.Persona{
			types.PersonaExplorer,
			types.PersonaBuilder,
			types.PersonaEngineer,
			types.PersonaDefault,
		}

		seen := make(map[string]types.Persona)
		for _, p := range personas {
			prompt := adapter.SystemPrompt(p)
			assert.NotEmpty(t, prompt)
			if prior, dup := seen[prompt]; dup {
				t.Errorf("personas %s and %s share a prompt", prior, p)
			}
			seen[prompt] = p
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t,
			adapter.SystemPrompt(types.PersonaBuilder),
			adapter.SystemPrompt(types.PersonaBuilder))
	})

	t.Run("UnknownPersonaFallsBackToDefault", func(t *testing.T) {
		assert.Equal(t,
			adapter.SystemPrompt(types.PersonaDefault),
			adapter.SystemPrompt(types.Persona("Wizard")))
	})

	t.Run("PersonaFlavor", func(t *testing.T) {
		assert.Contains(t, adapter.SystemPrompt(types.PersonaExplorer), "simulation")
		assert.Contains(t, adapter.SystemPrompt(types.PersonaBuilder), "Arduino")
		assert.Contains(t, adapter.SystemPrompt(types.PersonaEngineer), "industrial")
	})

	t.Run("AllPromptsRequireCitations", func(t *testing.T) {
		for _, p := range []types.Persona{
			types.PersonaExplorer, types.PersonaBuilder,
			types.PersonaEngineer, types.PersonaDefault,
		} {
			assert.Contains(t, adapter.SystemPrompt(p), "cite sources from the textbook", "persona %s", p)
		}
	})
}

func TestComposePrompt(t *testing.T) {
	adapter := NewAdapter()

	t.Run("WithContext", func(t *testing.T) {
		prompt := adapter.ComposePrompt("Answer concisely.", types.PersonaEngineer,
			"--- From Chapter 2 ---\n[Nodes]\nNodes run computation.")

		assert.Contains(t, prompt, "BASE INSTRUCTIONS:")
		assert.Contains(t, prompt, "Answer concisely.")
		assert.Contains(t, prompt, "RETRIEVED CONTEXT FROM TEXTBOOK:")
		assert.Contains(t, prompt, "Nodes run computation.")

		// Persona block leads, base instructions follow, context trails.
		personaIdx := strings.Index(prompt, "PERSONA CONTEXT")
		baseIdx := strings.Index(prompt, "BASE INSTRUCTIONS:")
		contextIdx := strings.Index(prompt, "RETRIEVED CONTEXT FROM TEXTBOOK:")
		assert.Less(t, personaIdx, baseIdx)
		assert.Less(t, baseIdx, contextIdx)
	})

	t.Run("WithoutContext", func(t *testing.T) {
		prompt := adapter.ComposePrompt("Answer concisely.", types.PersonaDefault, "")

		assert.Contains(t, prompt, "BASE INSTRUCTIONS:")
		assert.NotContains(t, prompt, "RETRIEVED CONTEXT FROM TEXTBOOK:")
	})
}
