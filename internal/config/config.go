package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"qualflow/internal/domain"
)

// Duplicate-title handling modes.
const (
	DuplicateTitlesWarn = "warn"
	DuplicateTitlesOff  = "off"
)

// Config models qualflow.yml.
type Config struct {
	Workflow struct {
		// StrictPayloads turns the permissive submit/reject checks into
		// InvalidPayload errors.
		StrictPayloads  bool   `yaml:"strict_payloads"`
		DuplicateTitles string `yaml:"duplicate_titles"`
	} `yaml:"workflow"`
	Registry struct {
		InitialVersion string `yaml:"initial_version"`
	} `yaml:"registry"`
	Checklist struct {
		Items []string `yaml:"items"`
	} `yaml:"checklist"`
	Roles map[string]RoleInfo `yaml:"roles"`
}

type RoleInfo struct {
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Workflow.DuplicateTitles {
	case DuplicateTitlesWarn, DuplicateTitlesOff:
	case "":
		return fmt.Errorf("config.workflow.duplicate_titles is required")
	default:
		return fmt.Errorf("config.workflow.duplicate_titles must be %q or %q, got %q", DuplicateTitlesWarn, DuplicateTitlesOff, c.Workflow.DuplicateTitles)
	}
	if c.Registry.InitialVersion == "" {
		return fmt.Errorf("config.registry.initial_version is required")
	}
	for i, item := range c.Checklist.Items {
		if item == "" {
			return fmt.Errorf("config.checklist.items[%d] is empty", i)
		}
	}
	for role := range c.Roles {
		if !domain.Role(role).Valid() {
			return fmt.Errorf("config.roles references unknown role %s", role)
		}
	}
	return nil
}

// DisplayName returns the configured label for a role, or the role itself.
func (c *Config) DisplayName(role domain.Role) string {
	if c != nil {
		if info, ok := c.Roles[string(role)]; ok && info.DisplayName != "" {
			return info.DisplayName
		}
	}
	return string(role)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "qualflow.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with qf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the parsed default config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workflow:
  strict_payloads: false
  duplicate_titles: warn

registry:
  initial_version: "1.0"

checklist:
  items:
    - "Qualification title reflects the occupation and level"
    - "NVQF level descriptors are met"
    - "Competency standards are validated by industry"
    - "Assessment packages cover every competency standard"
    - "Curriculum aligns with the competency standards"
    - "Entry requirements are stated"
    - "Credit values are assigned to each unit"
    - "QDC composition includes industry representation"
    - "Industry validation record is attached"
    - "Qualification is not a duplicate of a registered qualification"

roles:
  Admin:
    display_name: "NAVTTC Admin"
    description: "Reviews QDF-1 submissions and grants final approval"
  ProposingOrg:
    display_name: "Proposing Organization"
    description: "Submits QDF-1 and nominates the QDC"
  CommitteeMember:
    display_name: "QDC Member"
    description: "Develops competency standards in the workspace"
  IndustryExpert:
    display_name: "Industry Expert"
    description: "Endorses validated competency standards"
  TrainingProvider:
    display_name: "Training Provider"
  SystemAdmin:
    display_name: "System Administrator"
`
