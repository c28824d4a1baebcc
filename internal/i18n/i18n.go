package i18n

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds UI strings keyed by language and then by message key.
type Catalog struct {
	messages map[string]map[string]string
	fallback string
}

// Load reads a YAML file of the form
//
//	fi:
//	  fine_status_overdue: Myöhästymismaksu
//	en:
//	  fine_status_overdue: Overdue fine
//
// An empty path yields an empty catalog.
func Load(path, fallback string) (*Catalog, error) {
	c := &Catalog{messages: map[string]map[string]string{}, fallback: normalize(fallback)}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("i18n.Load: %w", err)
	}
	return c, c.parse(data)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte, fallback string) (*Catalog, error) {
	c := &Catalog{messages: map[string]map[string]string{}, fallback: normalize(fallback)}
	return c, c.parse(data)
}

func (c *Catalog) parse(data []byte) error {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("i18n: parse: %w", err)
	}
	for lang, msgs := range raw {
		c.messages[normalize(lang)] = msgs
	}
	return nil
}

// Translate looks key up in lang, then its base language, then the fallback.
func (c *Catalog) Translate(lang, key string) (string, bool) {
	lang = normalize(lang)
	candidates := []string{lang}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		candidates = append(candidates, lang[:i])
	}
	candidates = append(candidates, c.fallback)

	for _, l := range candidates {
		if s, ok := c.messages[l][key]; ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func normalize(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
}
