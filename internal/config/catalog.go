package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// Catalog lists the monitored backends plus the keyword and phrase lists that
// drive provider selection and refusal detection.
type Catalog struct {
	Services          []domain.ServiceConfig `yaml:"services" validate:"dive"`
	SensitiveKeywords []string               `yaml:"sensitive_keywords"`
	RefusalPhrases    []string               `yaml:"refusal_phrases"`
}

// DefaultSensitiveKeywords route a prompt to the personal provider in auto mode.
var DefaultSensitiveKeywords = []string{
	"nsfw",
	"uncensored",
	"explicit",
	"nude",
	"private",
	"confidential",
}

// DefaultRefusalPhrases is the multi-language refusal dictionary.
var DefaultRefusalPhrases = []string{
	// en
	"i cannot",
	"i can't",
	"i can not",
	"i'm unable to",
	"i am unable to",
	"i'm not able to",
	"i won't be able to",
	"as an ai",
	"i'm sorry, but i",
	"i must decline",
	"against my guidelines",
	// fr
	"je ne peux pas",
	"en tant qu'ia",
	"je suis désolé, mais",
	// es
	"no puedo",
	"como ia",
	"como modelo de lenguaje",
	// de
	"ich kann nicht",
	"als ki",
	// it
	"non posso",
	// pt
	"não posso",
}

// LoadCatalog reads the YAML catalog at cfg.CatalogPath. Sections missing from
// the file, or the whole file when no path is set, fall back to defaults.
func LoadCatalog(cfg Config) (Catalog, error) {
	var cat Catalog
	if cfg.CatalogPath != "" {
		raw, err := os.ReadFile(cfg.CatalogPath)
		if err != nil {
			return Catalog{}, fmt.Errorf("op=config.LoadCatalog: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cat); err != nil {
			return Catalog{}, fmt.Errorf("op=config.LoadCatalog: parse %s: %w", cfg.CatalogPath, err)
		}
	}
	if len(cat.Services) == 0 {
		cat.Services = DefaultServices(cfg)
	}
	if len(cat.SensitiveKeywords) == 0 {
		cat.SensitiveKeywords = append([]string(nil), DefaultSensitiveKeywords...)
	}
	if len(cat.RefusalPhrases) == 0 {
		cat.RefusalPhrases = append([]string(nil), DefaultRefusalPhrases...)
	}
	cat.SensitiveKeywords = normalizeList(cat.SensitiveKeywords)
	cat.RefusalPhrases = normalizeList(cat.RefusalPhrases)
	for i := range cat.Services {
		fillPort(&cat.Services[i])
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("op=config.LoadCatalog: %w", err)
	}
	return cat, nil
}

// Validate checks struct tags and rejects duplicate service ids.
func (c Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate service id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// DefaultServices derives the monitored backends from the provider settings.
// The personal model is listed separately only when it is served from its own host.
func DefaultServices(cfg Config) []domain.ServiceConfig {
	svcs := []domain.ServiceConfig{
		{
			ID:           "cloud-gateway",
			Name:         "Cloud Inference Gateway",
			URL:          cfg.CloudBaseURL,
			HealthPath:   cfg.CloudHealthPath,
			Capabilities: []string{"chat", "streaming"},
		},
		{
			ID:           "ollama",
			Name:         "Ollama",
			URL:          cfg.LocalBaseURL,
			HealthPath:   "/api/version",
			Capabilities: []string{"chat", "streaming", "local"},
		},
		{
			ID:           "specialized",
			Name:         "Specialized Model Server",
			URL:          cfg.SpecializedBaseURL,
			HealthPath:   "/models",
			Capabilities: []string{"chat", "uncensored"},
		},
	}
	if strings.TrimRight(cfg.PersonalBaseURL, "/") != strings.TrimRight(cfg.LocalBaseURL, "/") {
		svcs = append(svcs, domain.ServiceConfig{
			ID:           "personal",
			Name:         "Personal Model",
			URL:          cfg.PersonalBaseURL,
			HealthPath:   "/api/version",
			Capabilities: []string{"chat", "streaming", "uncensored"},
		})
	}
	for i := range svcs {
		fillPort(&svcs[i])
	}
	return svcs
}

func fillPort(s *domain.ServiceConfig) {
	if s.Port != 0 {
		return
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			s.Port = n
		}
		return
	}
	switch u.Scheme {
	case "https":
		s.Port = 443
	case "http":
		s.Port = 80
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
