package homepage

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// templateVar matches Homepage template variables ({{HOMEPAGE_VAR_...}})
var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Loader reads a Homepage services.yaml or bookmarks.yaml file
type Loader struct {
	filePath string
	kind     Kind
}

// NewLoader creates a new Homepage loader
func NewLoader(filePath string, kind Kind) *Loader {
	return &Loader{
		filePath: filePath,
		kind:     kind,
	}
}

// Path returns the file the loader reads
func (l *Loader) Path() string { return l.filePath }

// Load reads the file and maps it to link entries
func (l *Loader) Load() ([]Entry, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", l.kind, err)
	}

	// Template variables are secrets or hosts we cannot resolve
	data = stripTemplateVariables(data)

	switch l.kind {
	case KindServices:
		var config ServicesConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse services yaml: %w", err)
		}
		return MapServices(config)
	case KindBookmarks:
		var config BookmarksConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse bookmarks yaml: %w", err)
		}
		return MapBookmarks(config)
	default:
		return nil, fmt.Errorf("unknown homepage file kind %q", l.kind)
	}
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
