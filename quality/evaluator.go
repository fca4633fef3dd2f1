// Package quality scores a content plan against its measured narration.
// The evaluator is deterministic: the same session state always yields the
// same score, so the validate/adjust loop converges or hits its iteration
// cap instead of oscillating.
package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/lordpython/aisoulstudio/production"
)

// ApprovalThreshold is the minimum score at which a plan is approved.
const ApprovalThreshold = 80

// Speech pacing bounds in words per second. Outside this band narration
// sounds rushed or padded.
const (
	minWordsPerSecond = 1.0
	maxWordsPerSecond = 3.5
)

// Evaluation is the outcome of scoring one plan.
type Evaluation struct {
	Score            int      `json:"score"`
	Approved         bool     `json:"approved"`
	NeedsImprovement bool     `json:"needsImprovement"`
	Issues           []string `json:"issues"`
	Suggestions      []string `json:"suggestions"`
}

// Evaluate scores the plan in state. Scoring starts at 100 and subtracts
// penalties for timing drift against measured narration, structural gaps,
// and pacing problems; it never mutates state.
func Evaluate(state *production.State) Evaluation {
	eval := Evaluation{Score: 100}

	plan := state.ContentPlan
	if plan == nil || len(plan.Scenes) == 0 {
		eval.Score = 0
		eval.NeedsImprovement = true
		eval.Issues = append(eval.Issues, "no content plan with scenes exists")
		eval.Suggestions = append(eval.Suggestions, "call plan_video to create a content plan first")
		return eval
	}

	eval.penalize(timingDriftPenalty(plan, state.NarrationSegments))

	if len(state.NarrationSegments) == 0 {
		eval.penalize(penalty{
			points:     25,
			issue:      "no narration has been synthesized yet",
			suggestion: "call narrate_scenes so timing can be validated against real audio",
		})
		eval.NeedsImprovement = true
	} else if len(state.NarrationSegments) < len(plan.Scenes) {
		eval.penalize(penalty{
			points: 10,
			issue: fmt.Sprintf("only %d of %d scenes have narration",
				len(state.NarrationSegments), len(plan.Scenes)),
			suggestion: "re-run narrate_scenes to cover every scene",
		})
	}

	eval.penalize(structuralPenalties(plan)...)
	eval.penalize(totalDurationPenalty(plan))
	eval.penalize(pacingPenalty(plan))

	if eval.Score < 0 {
		eval.Score = 0
	}
	eval.Approved = eval.Score >= ApprovalThreshold
	if !eval.Approved {
		eval.NeedsImprovement = true
	}
	return eval
}

type penalty struct {
	points     int
	issue      string
	suggestion string
}

func (e *Evaluation) penalize(penalties ...penalty) {
	for _, p := range penalties {
		if p.points == 0 {
			continue
		}
		e.Score -= p.points
		if p.issue != "" {
			e.Issues = append(e.Issues, p.issue)
		}
		if p.suggestion != "" {
			e.Suggestions = append(e.Suggestions, p.suggestion)
		}
	}
}

// timingDriftPenalty compares planned scene durations against measured
// narration audio, scene index to segment index. Drift is the summed
// absolute difference relative to total audio length, capped at 40 points.
// adjust_timing zeroes this component.
func timingDriftPenalty(plan *production.ContentPlan, segments []production.NarrationSegment) penalty {
	var drift, audioTotal float64
	for i, scene := range plan.Scenes {
		if i >= len(segments) || segments[i].AudioDuration <= 0 {
			continue
		}
		drift += math.Abs(scene.Duration - segments[i].AudioDuration)
		audioTotal += segments[i].AudioDuration
	}
	if audioTotal <= 0 {
		return penalty{}
	}

	points := int(drift/audioTotal*100 + 0.5)
	if points > 40 {
		points = 40
	}
	if points < 5 {
		return penalty{}
	}
	return penalty{
		points:     points,
		issue:      fmt.Sprintf("scene durations drift %d%% from measured narration audio", points),
		suggestion: "call adjust_timing to align scene durations with the narration",
	}
}

func structuralPenalties(plan *production.ContentPlan) []penalty {
	var missingScript, missingVisual int
	for _, scene := range plan.Scenes {
		if strings.TrimSpace(scene.NarrationScript) == "" {
			missingScript++
		}
		if strings.TrimSpace(scene.VisualDesc) == "" {
			missingVisual++
		}
	}

	var penalties []penalty
	if missingScript > 0 {
		penalties = append(penalties, penalty{
			points:     15,
			issue:      fmt.Sprintf("%d scenes have no narration script", missingScript),
			suggestion: "regenerate the plan with narration text for every scene",
		})
	}
	if missingVisual > 0 {
		penalties = append(penalties, penalty{
			points: 10,
			issue:  fmt.Sprintf("%d scenes have no visual description", missingVisual),
		})
	}
	return penalties
}

func totalDurationPenalty(plan *production.ContentPlan) penalty {
	var sum float64
	for _, scene := range plan.Scenes {
		sum += scene.Duration
	}
	if math.Abs(sum-plan.TotalDuration) <= 0.05 {
		return penalty{}
	}
	return penalty{
		points: 10,
		issue: fmt.Sprintf("plan totalDuration %.1fs does not match the scene sum %.1fs",
			plan.TotalDuration, sum),
		suggestion: "call adjust_timing to recompute the total duration",
	}
}

func pacingPenalty(plan *production.ContentPlan) penalty {
	offending := 0
	for _, scene := range plan.Scenes {
		if scene.Duration <= 0 {
			continue
		}
		words := len(strings.Fields(scene.NarrationScript))
		if words == 0 {
			continue
		}
		rate := float64(words) / scene.Duration
		if rate < minWordsPerSecond || rate > maxWordsPerSecond {
			offending++
		}
	}
	if offending == 0 {
		return penalty{}
	}

	points := offending * 5
	if points > 15 {
		points = 15
	}
	return penalty{
		points: points,
		issue: fmt.Sprintf("%d scenes have speech pacing outside %.1f-%.1f words/sec",
			offending, minWordsPerSecond, maxWordsPerSecond),
		suggestion: "shorten or lengthen narration scripts, or adjust scene durations",
	}
}
