package content

import (
	"context"
	"fmt"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/tools"
)

// generateBreakdown turns a story idea into a three-act breakdown and opens
// a screenplay session for the follow-up tools.
func (e *Executor) generateBreakdown(ctx context.Context, call llm.ToolCall) (string, error) {
	story, _ := call.StringArg("story")
	if story == "" {
		return tools.Failure("story is required", "describe the story idea to break down"), nil
	}

	breakdown, err := e.writer.GenerateBreakdown(ctx, story)
	if err != nil {
		return "", fmt.Errorf("generating breakdown: %w", err)
	}

	id := production.NewStoryID()
	state := production.NewState(id)
	state.Screenplay = &production.Screenplay{Breakdown: breakdown}
	if title, ok := call.StringArg("title"); ok && title != "" {
		state.ImportedContent = &production.ImportedContent{SourceKind: "story", Title: title}
	}
	if err := e.sessions.Create(id, state); err != nil {
		return "", fmt.Errorf("creating screenplay session: %w", err)
	}

	e.logger.Info("Story breakdown created", "session_id", id, "length", len(breakdown))

	return tools.Success(map[string]any{
		"sessionId":       id,
		"breakdownLength": len(breakdown),
	}), nil
}

func (e *Executor) createScreenplay(ctx context.Context, call llm.ToolCall) (string, error) {
	state, fail := e.screenplaySession(call)
	if fail != "" {
		return fail, nil
	}
	if state.Screenplay.Breakdown == "" {
		return tools.Failure("session has no story breakdown", "call generate_breakdown first"), nil
	}

	script, err := e.writer.CreateScreenplay(ctx, state.Screenplay.Breakdown)
	if err != nil {
		return "", fmt.Errorf("writing screenplay: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.Screenplay.Script = script
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{"scriptLength": len(script)}), nil
}

func (e *Executor) generateCharacters(ctx context.Context, call llm.ToolCall) (string, error) {
	state, fail := e.screenplaySession(call)
	if fail != "" {
		return fail, nil
	}
	if state.Screenplay.Script == "" {
		return tools.Failure("session has no screenplay yet", "call create_screenplay first"), nil
	}

	characters, err := e.writer.GenerateCharacters(ctx, state.Screenplay.Script)
	if err != nil {
		return "", fmt.Errorf("extracting characters: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.Screenplay.Characters = characters
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{"characterCount": len(characters)}), nil
}

func (e *Executor) generateShotlist(ctx context.Context, call llm.ToolCall) (string, error) {
	state, fail := e.screenplaySession(call)
	if fail != "" {
		return fail, nil
	}
	if state.Screenplay.Script == "" {
		return tools.Failure("session has no screenplay yet", "call create_screenplay first"), nil
	}

	shots, err := e.writer.GenerateShotlist(ctx, state.Screenplay.Script)
	if err != nil {
		return "", fmt.Errorf("deriving shotlist: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.Screenplay.Shots = shots
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{"shotCount": len(shots)}), nil
}

// screenplaySession resolves the session argument and checks it is a
// screenplay session. The second return is a ready failure payload.
func (e *Executor) screenplaySession(call llm.ToolCall) (*production.State, string) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return nil, tools.Failure(err.Error(), "pass the sessionId returned by generate_breakdown")
	}
	if state.Screenplay == nil {
		return nil, tools.Failure(
			fmt.Sprintf("session %q is not a screenplay session", state.SessionID),
			"call generate_breakdown to start screenplay mode")
	}
	return state, ""
}
