package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		CloudBaseURL:       "http://cloud:3000",
		CloudHealthPath:    "/api/health",
		LocalBaseURL:       "http://localhost:11434",
		PersonalBaseURL:    "http://localhost:11434",
		SpecializedBaseURL: "https://lm.example.com/v1",
	}
}

func TestLoadCatalog_Defaults(t *testing.T) {
	cat, err := LoadCatalog(baseConfig())
	require.NoError(t, err)
	require.Len(t, cat.Services, 3)
	assert.Equal(t, 3000, cat.Services[0].Port)
	assert.Equal(t, 11434, cat.Services[1].Port)
	assert.Equal(t, 443, cat.Services[2].Port)
	assert.Contains(t, cat.RefusalPhrases, "je ne peux pas")
	assert.Contains(t, cat.RefusalPhrases, "as an ai")
	assert.Contains(t, cat.SensitiveKeywords, "nsfw")
}

func TestLoadCatalog_SeparatePersonalHost(t *testing.T) {
	cfg := baseConfig()
	cfg.PersonalBaseURL = "http://gpu-box:11434"
	cat, err := LoadCatalog(cfg)
	require.NoError(t, err)
	require.Len(t, cat.Services, 4)
	assert.Equal(t, "personal", cat.Services[3].ID)
}

func TestLoadCatalog_FromYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
services:
  - id: comfyui
    name: ComfyUI
    url: http://localhost:8188
    health_path: /system_stats
    capabilities: [image]
  - id: whisper
    name: Whisper
    url: http://localhost:9000
    port: 9000
sensitive_keywords: ["  Secret  ", "secret", "diary"]
`
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o600))
	cfg := baseConfig()
	cfg.CatalogPath = p
	cat, err := LoadCatalog(cfg)
	require.NoError(t, err)
	require.Len(t, cat.Services, 2)
	assert.Equal(t, 8188, cat.Services[0].Port)
	assert.Equal(t, []string{"image"}, cat.Services[0].Capabilities)
	assert.Equal(t, []string{"secret", "diary"}, cat.SensitiveKeywords)
	// missing section falls back to defaults
	assert.Equal(t, len(DefaultRefusalPhrases), len(cat.RefusalPhrases))
}

func TestLoadCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"duplicate": "services:\n  - {id: a, name: A, url: http://a}\n  - {id: a, name: B, url: http://b}\n",
		"bad url":   "services:\n  - {id: a, name: A, url: not a url}\n",
		"bad yaml":  "services: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(p, []byte(doc), 0o600))
			cfg := baseConfig()
			cfg.CatalogPath = p
			_, err := LoadCatalog(cfg)
			require.Error(t, err)
		})
	}

	cfg := baseConfig()
	cfg.CatalogPath = filepath.Join(dir, "missing.yaml")
	_, err := LoadCatalog(cfg)
	require.Error(t, err)
}
