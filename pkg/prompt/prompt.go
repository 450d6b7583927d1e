// Package prompt assembles a tenant's system prompt from an industry
// template.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/alphadose/haxmap"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

//go:embed templates/*.txt
var embedded embed.FS

const genericTemplate = "generic"

// Assembler renders system prompts. Templates are read once per vertical.
type Assembler struct {
	dir    string
	cache  *haxmap.Map[string, string]
	logger *slog.Logger
}

// NewAssembler returns an assembler that prefers <dir>/<vertical>.txt over
// the built-in templates. dir may be empty.
func NewAssembler(dir string, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{dir: dir, cache: haxmap.New[string, string](), logger: logger}
}

func (a *Assembler) Assemble(cfg *tenant.Config) string {
	vertical := ""
	if cfg != nil {
		vertical = strings.ToLower(strings.TrimSpace(cfg.IndustryVertical))
	}
	return Interpolate(a.template(vertical), Variables(cfg))
}

func (a *Assembler) template(vertical string) string {
	if vertical == "" {
		vertical = genericTemplate
	}
	tpl, _ := a.cache.GetOrCompute(vertical, func() string {
		text, err := a.load(vertical)
		if err == nil {
			return text
		}
		a.logger.Warn("prompt_template_missing", "vertical", vertical, "error", err)
		text, err = a.load(genericTemplate)
		if err != nil {
			return "You are a helpful voice assistant. Be professional and concise."
		}
		return text
	})
	return tpl
}

func (a *Assembler) load(vertical string) (string, error) {
	if strings.ContainsAny(vertical, `/\.`) {
		return "", fmt.Errorf("invalid vertical %q", vertical)
	}
	name := vertical + ".txt"
	if a.dir != "" {
		raw, err := os.ReadFile(filepath.Join(a.dir, name))
		if err == nil {
			return string(raw), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	raw, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Variables builds the interpolation context for cfg.
func Variables(cfg *tenant.Config) map[string]string {
	if cfg == nil {
		cfg = &tenant.Config{}
	}
	cc := cfg.CallConfig
	return map[string]string{
		"company_name":         orDefault(cfg.CompanyName, "our company"),
		"industry":             cfg.IndustryVertical,
		"tone":                 orDefault(cc.ToneOverride, "professional, friendly, and helpful"),
		"after_hours_behavior": orDefault(cc.AfterHoursBehavior, "voicemail"),
		"transfer_number":      orDefault(cc.TransferNumber, "our main line"),
		"emergency_keywords":   strings.Join(cc.EmergencyKeywords, ", "),
		"faq_content":          faqList(cc.FAQContent),
		"services_list":        servicesList(cfg.Services),
	}
}

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces {{name}} with vars[name]. Unknown names are left as is.
func Interpolate(tpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

func servicesList(services []tenant.Service) string {
	if len(services) == 0 {
		return "Contact us for a full list of available services."
	}
	lines := make([]string, 0, len(services))
	for _, s := range services {
		price := "Call for pricing"
		if s.BasePrice > 0 {
			price = fmt.Sprintf("$%.2f", s.BasePrice)
		}
		line := "- " + s.Name + ": " + price
		if s.DurationMinutes > 0 {
			line += fmt.Sprintf(", %d min", s.DurationMinutes)
		}
		if s.RequiresDeposit {
			line += " [deposit required]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// faqList renders entries sorted by question so prompts are stable.
func faqList(faq map[string]string) string {
	keys := make([]string, 0, len(faq))
	for k := range faq {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, "- "+k+": "+faq[k])
	}
	return strings.Join(lines, "\n")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
