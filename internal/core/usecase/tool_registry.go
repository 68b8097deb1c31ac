package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// ToolRegistry is the catalog of invocable capabilities. It is populated at
// startup and read-mostly afterwards; re-registering a name overwrites the
// previous binding with a logged warning.
type ToolRegistry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]registeredTool
}

type registeredTool struct {
	def domain.ToolDefinition
	fn  ports.ToolFunc
}

func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		logger: logger,
		tools:  make(map[string]registeredTool),
	}
}

func (r *ToolRegistry) Register(def domain.ToolDefinition, fn ports.ToolFunc) error {
	if strings.TrimSpace(def.Name) == "" {
		return domain.WrapError(domain.ErrConfiguration, "register tool", fmt.Errorf("empty tool name"))
	}
	if fn == nil {
		return domain.WrapError(domain.ErrConfiguration, "register tool", fmt.Errorf("nil function for tool %s", def.Name))
	}

	r.mu.Lock()
	_, overwrite := r.tools[def.Name]
	r.tools[def.Name] = registeredTool{def: def, fn: fn}
	r.mu.Unlock()

	if overwrite {
		r.logger.Warn("tool_overwritten", "tool", def.Name)
	} else {
		r.logger.Info("tool_registered", "tool", def.Name)
	}
	return nil
}

func (r *ToolRegistry) Get(name string) (domain.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t.def, ok
}

func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Descriptions renders the tool catalog as a block for planning prompts.
func (r *ToolRegistry) Descriptions() string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		def, _ := r.Get(name)
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		if len(def.RequiredArgs) > 0 {
			fmt.Fprintf(&b, "  required args: %s\n", strings.Join(def.RequiredArgs, ", "))
		}
		if len(def.OptionalArgs) > 0 {
			fmt.Fprintf(&b, "  optional args: %s\n", strings.Join(def.OptionalArgs, ", "))
		}
		if def.ReturnType != "" {
			fmt.Fprintf(&b, "  returns: %s\n", def.ReturnType)
		}
	}
	return b.String()
}

// Execute validates required arguments, invokes the tool, and converts any
// failure (including panics) into a typed error. Raw panics never escape.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrToolFailure, "execute tool", fmt.Errorf("unknown tool %q", name))
	}

	var missing []string
	for _, required := range tool.def.RequiredArgs {
		if _, present := args[required]; !present {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrToolFailure, "execute tool",
			fmt.Errorf("tool %q missing required args: %s", name, strings.Join(missing, ", ")))
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = domain.WrapError(domain.ErrToolFailure, "execute tool", fmt.Errorf("tool %q panicked: %v", name, rec))
			r.logger.Error("tool_panicked", "tool", name, "panic", rec)
		}
	}()

	result, err = tool.fn(ctx, args)
	if err != nil {
		r.logger.Warn("tool_failed", "tool", name, "error", err)
		if !domain.IsKind(err, domain.ErrToolFailure) {
			err = domain.WrapError(domain.ErrToolFailure, "execute tool", err)
		}
		return nil, err
	}
	r.logger.Debug("tool_executed", "tool", name)
	return result, nil
}
