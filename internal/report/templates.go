package report

import (
	"embed"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/punchlist-monitor/internal/execlog"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// Template names.
const (
	TemplateMain      = "main"
	TemplateSecondary = "secondary"
	TemplateClosure   = "closure"
	TemplateLog       = "log"
)

// Colors of the execution log levels.
var levelColors = map[execlog.Level]string{
	execlog.LevelSuccess: "#28a745",
	execlog.LevelError:   "#dc3545",
	execlog.LevelWarn:    "#ffc107",
	execlog.LevelInfo:    "#0050b3",
}

// TemplateService renders the report bodies with Liquid and caches parsed
// templates by name.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTemplateService creates a template service with the report filters.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerCustomFilters()
	return ts
}

func (ts *TemplateService) registerCustomFilters() {
	// {{ list | default: "-" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if strings.TrimSpace(s) == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ message | escape }}
	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// {{ entry.level | level_color }}
	ts.engine.RegisterFilter("level_color", func(level string) string {
		if c, ok := levelColors[execlog.Level(strings.ToUpper(strings.TrimSpace(level)))]; ok {
			return c
		}
		return "#212121"
	})
}

// Render executes the named embedded template.
func (ts *TemplateService) Render(name string, ctx map[string]interface{}) (string, error) {
	tpl, err := ts.template(name)
	if err != nil {
		return "", err
	}
	out, rerr := tpl.RenderString(ctx)
	if rerr != nil {
		logger.Error("report: template render failed", "template", name, "error", rerr)
		return "", fmt.Errorf("rendering %s: %w", name, rerr)
	}
	return out, nil
}

func (ts *TemplateService) template(name string) (*liquid.Template, error) {
	if cached, ok := ts.cache.Load(name); ok {
		return cached.(*liquid.Template), nil
	}
	src, err := templateFS.ReadFile("templates/" + name + ".liquid")
	if err != nil {
		return nil, fmt.Errorf("report: unknown template %q: %w", name, err)
	}
	tpl, perr := ts.engine.ParseTemplate(src)
	if perr != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, perr)
	}
	ts.cache.Store(name, tpl)
	return tpl, nil
}
