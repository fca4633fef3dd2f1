package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lordpython/aisoulstudio/llm"
)

// Group names one tool group.
type Group string

// The six production tool groups.
const (
	GroupImport      Group = "IMPORT"
	GroupContent     Group = "CONTENT"
	GroupMedia       Group = "MEDIA"
	GroupEnhancement Group = "ENHANCEMENT"
	GroupExport      Group = "EXPORT"
	GroupUtility     Group = "UTILITY"
)

// toolGroups is the closed catalog: every production tool and its group.
// Registering a tool absent from this table fails, which keeps executor
// packages and the catalog in lockstep.
var toolGroups = map[string]Group{
	"import_youtube_content": GroupImport,
	"transcribe_audio_file":  GroupImport,
	"import_web_article":     GroupImport,

	"plan_video":          GroupContent,
	"narrate_scenes":      GroupContent,
	"validate_plan":       GroupContent,
	"adjust_timing":       GroupContent,
	"generate_breakdown":  GroupContent,
	"create_screenplay":   GroupContent,
	"generate_characters": GroupContent,
	"generate_shotlist":   GroupContent,

	"generate_visuals": GroupMedia,
	"generate_video":   GroupMedia,
	"animate_image":    GroupMedia,
	"plan_sfx":         GroupMedia,
	"generate_music":   GroupMedia,

	"verify_character_consistency": GroupEnhancement,
	"remove_background":            GroupEnhancement,
	"restyle_image":                GroupEnhancement,
	"mix_audio_tracks":             GroupEnhancement,

	"generate_subtitles":         GroupExport,
	"validate_export":            GroupExport,
	"list_export_presets":        GroupExport,
	"export_final_video":         GroupExport,
	"upload_production_to_cloud": GroupExport,

	"get_production_status": GroupUtility,
	"mark_complete":         GroupUtility,
}

// toolDependencies records, per tool, the prior tools that must have
// succeeded for it to be meaningfully executable. The registry does not
// enforce this at dispatch time; the supervisor uses it for stage gates and
// the system prompt renders it as ordering guidance.
var toolDependencies = map[string][]string{
	"narrate_scenes":      {"plan_video"},
	"validate_plan":       {"narrate_scenes"},
	"adjust_timing":       {"narrate_scenes"},
	"create_screenplay":   {"generate_breakdown"},
	"generate_characters": {"create_screenplay"},
	"generate_shotlist":   {"create_screenplay"},

	"generate_visuals": {"plan_video"},
	"generate_video":   {"plan_video"},
	"animate_image":    {"generate_visuals"},
	"plan_sfx":         {"plan_video"},
	"generate_music":   {"plan_video"},

	"verify_character_consistency": {"generate_visuals"},
	"remove_background":            {"generate_visuals"},
	"restyle_image":                {"generate_visuals"},
	"mix_audio_tracks":             {"narrate_scenes"},

	"generate_subtitles":         {"narrate_scenes"},
	"validate_export":            {"plan_video"},
	"export_final_video":         {"narrate_scenes", "generate_visuals"},
	"upload_production_to_cloud": {"plan_video"},

	"transcribe_audio_file": {},
}

// GroupFor returns the group a tool belongs to.
func GroupFor(name string) (Group, bool) {
	g, ok := toolGroups[name]
	return g, ok
}

// DependenciesFor returns the dependency list for a tool. Tools without an
// entry have no dependencies.
func DependenciesFor(name string) []string {
	return toolDependencies[name]
}

// Registration couples one tool definition with its group, dependencies,
// and the executor serving it.
type Registration struct {
	Definition   llm.ToolDefinition
	Group        Group
	Dependencies []string
	Executor     Executor
}

// Registry is the dispatch table for the production tool surface. It
// implements Executor itself, so decorators wrap the whole surface at once.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Register adds one tool. Names are globally unique and must appear in the
// group catalog.
func (r *Registry) Register(reg Registration) error {
	name := reg.Definition.Name
	if name == "" {
		return fmt.Errorf("tool definition has no name")
	}
	if reg.Executor == nil {
		return fmt.Errorf("tool %s has no executor", name)
	}
	group, ok := toolGroups[name]
	if !ok {
		return fmt.Errorf("tool %s is not in the catalog", name)
	}
	if reg.Group == "" {
		reg.Group = group
	} else if reg.Group != group {
		return fmt.Errorf("tool %s belongs to group %s, not %s", name, group, reg.Group)
	}
	if reg.Dependencies == nil {
		reg.Dependencies = toolDependencies[name]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = reg
	r.order = append(r.order, name)
	return nil
}

// RegisterExecutor registers every tool an executor lists.
func (r *Registry) RegisterExecutor(exec Executor) error {
	for _, def := range exec.ListTools() {
		if err := r.Register(Registration{Definition: def, Executor: exec}); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the registration for a tool name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// ByGroup returns the registrations of one group in registration order.
func (r *Registry) ByGroup(group Group) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var regs []Registration
	for _, name := range r.order {
		if reg := r.tools[name]; reg.Group == group {
			regs = append(regs, reg)
		}
	}
	return regs
}

// Summary returns the tool count per group, sorted by group name.
func (r *Registry) Summary() map[Group]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Group]int)
	for _, reg := range r.tools {
		counts[reg.Group]++
	}
	return counts
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Registration)
	r.order = nil
}

// Execute dispatches a call to the executor registered for its tool name.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	r.mu.RLock()
	reg, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return UnknownTool(call.Name)
	}
	return reg.Executor.Execute(ctx, call)
}

// ListTools returns every registered definition in registration order.
func (r *Registry) ListTools() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// MissingDependencies walks a tool's dependency list against a set of
// completed tool names and returns the unmet ones, sorted.
func MissingDependencies(name string, completed map[string]bool) []string {
	var missing []string
	for _, dep := range toolDependencies[name] {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	sort.Strings(missing)
	return missing
}

var _ Executor = (*Registry)(nil)
