// Package agent orchestrates one chat turn end to end: retrieval, scope
// classification, safety and persona composition, and streamed generation.
package agent

import (
	"context"
	"io"
	"log/slog"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/llm"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/persona"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/rag"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/safety"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// SystemPrompt is the base instruction block every persona variant wraps.
const SystemPrompt = `You are a helpful AI assistant for the "Smart Humanoid Robotics"
online textbook. Your role is to help students learn about ROS 2, robotics, and
physical AI.

Guidelines:
- Always use the search_book_content tool to find relevant information before answering
- Provide accurate information based on the textbook content
- Include citations when referencing specific sections
- If a question is outside the scope of the textbook, politely explain that
- Be encouraging and supportive in helping students learn
- Use clear, educational language appropriate for the learner

Remember: Only provide information that can be found in the textbook. Do not make up
information or provide content from other sources.`

// Canned learner-facing messages for turns that end without a model call.
const (
	OutOfScopeMessage = "I don't have information about this topic in the textbook. " +
		"Please ask about ROS 2, robotics, or physical AI topics covered in the course."

	InsufficientSelectionMessage = "The selected text is too short for me to work with. " +
		"Please select a longer passage (a full sentence or paragraph) and ask again."

	IndexUnavailableMessage     = "The search index is temporarily unavailable. Please try again later."
	ServiceUnavailableMessage   = "The AI service is temporarily unavailable. Please try again later."
	EmbeddingUnavailableMessage = "The search service is temporarily unavailable. Please try again later."
)

// RetrievalPipeline is the retrieval contract the runner depends on. The
// concrete pipeline satisfies it; tests substitute fakes.
type RetrievalPipeline interface {
	Query(ctx context.Context, message string, opts rag.QueryOptions) (*rag.Result, error)
	QuerySelection(ctx context.Context, selectedText, query string) (*rag.Result, error)
}

// Generator starts streaming chat completions.
type Generator interface {
	StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.TokenStream, error)
}

// ChatGenerator adapts the concrete completion client to Generator.
type ChatGenerator struct {
	Client *llm.Client
}

func (g ChatGenerator) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.TokenStream, error) {
	return g.Client.StreamChat(ctx, messages, tools)
}

// TurnRequest is one fully validated chat turn. History is assumed already
// bounded by the caller; the runner does not truncate it.
type TurnRequest struct {
	Message      string
	Persona      types.Persona
	QueryType    types.QueryType
	Filters      *rag.SearchFilters
	PageScoped   bool
	SelectedText string

	// PageContent, when non-empty, is prepended to the retrieved context.
	// The transport owns page-content state and supplies it only for vague
	// contextual queries.
	PageContent string

	History []llm.Message
}

// TurnResult is the non-streamed byproduct of a turn, available once the
// retrieval phase completes.
type TurnResult struct {
	Citations               []types.Citation
	ConflictWarnings        []rag.ConflictWarning
	IsOutOfScope            bool
	IsInsufficientSelection bool
	SafetyDisclaimer        string
	HighRisk                bool
}

// Runner drives the turn state machine. All dependencies are injected; a
// single Runner serves concurrent turns.
type Runner struct {
	pipeline  RetrievalPipeline
	generator Generator
	checker   *safety.Checker
	adapter   *persona.Adapter
	logger    *slog.Logger
}

// NewRunner creates a turn runner.
func NewRunner(pipeline RetrievalPipeline, generator Generator, checker *safety.Checker) *Runner {
	return &Runner{
		pipeline:  pipeline,
		generator: generator,
		checker:   checker,
		adapter:   persona.NewAdapter(),
		logger:    slog.Default().With("component", "agent-runner"),
	}
}

// Run executes one turn and streams its output. The channel is closed after
// the terminal chunk; pending sends are abandoned when ctx is cancelled. The
// retrieval outcome is delivered on the single-slot result channel before
// any content streams.
func (r *Runner) Run(ctx context.Context, req TurnRequest) (<-chan types.StreamChunk, <-chan TurnResult) {
	chunks := make(chan types.StreamChunk, 8)
	results := make(chan TurnResult, 1)

	go func() {
		defer close(chunks)
		defer close(results)
		r.run(ctx, req, chunks, results)
	}()

	return chunks, results
}

func (r *Runner) run(ctx context.Context, req TurnRequest, chunks chan<- types.StreamChunk, results chan<- TurnResult) {
	ragResult, err := r.retrieve(ctx, req)
	if err != nil {
		results <- TurnResult{}
		r.emitError(ctx, chunks, err)
		return
	}

	safetyResult := r.checker.Check(req.Message)
	disclaimer := r.checker.Disclaimer(safetyResult)

	turnResult := TurnResult{
		Citations:               ragResult.Citations,
		ConflictWarnings:        ragResult.ConflictWarnings,
		IsOutOfScope:            ragResult.IsOutOfScope,
		IsInsufficientSelection: ragResult.IsInsufficientSelection,
		SafetyDisclaimer:        disclaimer,
		HighRisk:                safetyResult.HighRisk,
	}
	results <- turnResult

	if ragResult.IsInsufficientSelection {
		r.emitCanned(ctx, chunks, InsufficientSelectionMessage)
		return
	}
	if ragResult.IsOutOfScope {
		r.emitCanned(ctx, chunks, OutOfScopeMessage)
		return
	}

	for i := range ragResult.Citations {
		if !r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkCitation, Citation: &ragResult.Citations[i]}) {
			return
		}
	}

	// A high-risk request is answered with the refusal text alone.
	if safetyResult.HighRisk {
		r.logger.Info("High-risk request refused", "category", safetyResult.Category)
		r.emitCanned(ctx, chunks, disclaimer)
		return
	}
	if disclaimer != "" {
		if !r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkContent, Content: disclaimer + "\n\n"}) {
			return
		}
	}

	ragContext := ragResult.Context
	if req.PageContent != "" {
		pageBlock := "[Current Page Content]\n" + req.PageContent + "\n\n"
		if ragContext != "" {
			ragContext = pageBlock + "[RAG Results]\n" + ragContext
		} else {
			ragContext = pageBlock
		}
	}

	r.generate(ctx, req, ragContext, chunks)
}

func (r *Runner) retrieve(ctx context.Context, req TurnRequest) (*rag.Result, error) {
	if req.QueryType == types.QuerySelection {
		return r.pipeline.QuerySelection(ctx, req.SelectedText, req.Message)
	}
	return r.pipeline.Query(ctx, req.Message, rag.QueryOptions{
		Filters:    req.Filters,
		PageScoped: req.PageScoped,
	})
}

func (r *Runner) generate(ctx context.Context, req TurnRequest, ragContext string, chunks chan<- types.StreamChunk) {
	systemPrompt := r.adapter.ComposePrompt(SystemPrompt, req.Persona, ragContext)

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	// The search tool is offered only when nothing was pre-fetched; with
	// context in hand the model should answer from it, not search again.
	var tools []llm.Tool
	if ragContext == "" {
		tools = []llm.Tool{llm.SearchBookContentTool()}
	}

	stream, err := r.generator.StreamChat(ctx, messages, tools)
	if err != nil {
		r.emitError(ctx, chunks, err)
		return
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		event, err := stream.Recv()
		if err == io.EOF {
			r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkDone})
			return
		}
		if err != nil {
			r.emitError(ctx, chunks, err)
			return
		}

		if event.Done {
			r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkDone})
			return
		}
		if event.Content != "" {
			if !r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkContent, Content: event.Content}) {
				return
			}
		}
	}
}

func (r *Runner) emitCanned(ctx context.Context, chunks chan<- types.StreamChunk, message string) {
	if !r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkContent, Content: message}) {
		return
	}
	r.send(ctx, chunks, types.StreamChunk{Type: types.ChunkDone})
}

func (r *Runner) emitError(ctx context.Context, chunks chan<- types.StreamChunk, err error) {
	errType := svcerr.TypeOf(err)
	r.logger.Error("Turn failed", "type", string(errType), "error", err)
	r.send(ctx, chunks, types.StreamChunk{
		Type:    types.ChunkError,
		Error:   string(errType),
		Message: SanitizedMessage(errType),
	})
}

func (r *Runner) send(ctx context.Context, chunks chan<- types.StreamChunk, chunk types.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// SanitizedMessage maps an error classification to the fixed learner-facing
// text. Raw provider detail never reaches here.
func SanitizedMessage(errType svcerr.ErrorType) string {
	switch errType {
	case svcerr.ErrorTypeInvalidInput:
		return "The request could not be processed. Please check your input and try again."
	case svcerr.ErrorTypeEmbeddingUnavailable:
		return EmbeddingUnavailableMessage
	case svcerr.ErrorTypeIndexUnavailable:
		return IndexUnavailableMessage
	case svcerr.ErrorTypeGenerationUnavailable:
		return ServiceUnavailableMessage
	default:
		return "Something went wrong. Please try again later."
	}
}
