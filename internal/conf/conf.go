package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// Config represents application configuration
type Config struct {
	// Feishu credentials, usually supplied through the environment
	Feishu FeishuConfig `yaml:"feishu"`

	SourceChats      []string `yaml:"source_chats"`
	DestinationChats []string `yaml:"destination_chats"`
	// Admin notification chat
	ChatID string `yaml:"chat_id"`

	BlockedWords        []string          `yaml:"blocked_words"`
	Replacements        Replacements      `yaml:"replacements"`
	StickerReplacements map[string]string `yaml:"sticker_replacements"`
	ImageReplacements   map[string]string `yaml:"image_replacements"`
	TextOnly            bool              `yaml:"replicar_apenas_texto"`

	Schedule ScheduleConfig `yaml:"schedule"`

	LogLevel           string        `yaml:"log_level"`
	LogDir             string        `yaml:"log_dir"`
	DatabasePath       string        `yaml:"database_path"`
	MediaDir           string        `yaml:"media_dir"`
	APIAddr            string        `yaml:"api_addr"`
	DriftCheckInterval time.Duration `yaml:"drift_check_interval"`

	// Path the configuration was loaded from, empty for defaults
	Path string `yaml:"-"`
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
}

// ScheduleConfig contains the daily activity window
type ScheduleConfig struct {
	Enable    bool   `yaml:"enable"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
	Timezone  string `yaml:"timezone"`
}

// Replacements is an ordered original -> substitute mapping
type Replacements []domain.Replacement

// UnmarshalYAML decodes a YAML mapping while keeping key order
func (r *Replacements) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: replacements must be a mapping", node.Line)
	}
	out := make(Replacements, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var original, substitute string
		if err := node.Content[i].Decode(&original); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&substitute); err != nil {
			return err
		}
		out = append(out, domain.Replacement{Original: original, Substitute: substitute})
	}
	*r = out
	return nil
}

// MarshalYAML encodes replacements as an ordered mapping
func (r Replacements) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, rep := range r {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: rep.Original},
			&yaml.Node{Kind: yaml.ScalarNode, Value: rep.Substitute},
		)
	}
	return node, nil
}

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{
		StickerReplacements: map[string]string{},
		ImageReplacements:   map[string]string{},
		Schedule: ScheduleConfig{
			StartTime: "08:00",
			EndTime:   "22:00",
		},
		LogLevel:           "info",
		LogDir:             "logs",
		DatabasePath:       filepath.Join("data", "messages.db"),
		MediaDir:           "media",
		APIAddr:            ":8080",
		DriftCheckInterval: 15 * time.Minute,
	}
}

// SearchPaths returns the candidate config locations, most specific first
func SearchPaths(configPath string) []string {
	if configPath != "" {
		return []string{configPath}
	}
	if env := os.Getenv("RELAY_CONFIG_PATH"); env != "" {
		return []string{env}
	}

	paths := []string{
		"config.yaml",
		filepath.Join("configs", "config.yaml"),
	}
	// Add path relative to executable
	if execPath, err := os.Executable(); err == nil {
		dir := filepath.Dir(execPath)
		paths = append(paths,
			filepath.Join(dir, "config.yaml"),
			filepath.Join(dir, "configs", "config.yaml"),
		)
	}
	return paths
}

// Load reads the YAML config from the first search path that exists, loads
// .env if present and applies environment overrides. A missing file yields
// defaults; a malformed file is an error.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	for _, p := range SearchPaths(configPath) {
		data, err := os.ReadFile(p)
		if err != nil {
			if configPath != "" {
				return nil, fmt.Errorf("failed to read config %s: %w", p, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		cfg.Path = p
		break
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("FEISHU_APP_ID"); v != "" {
		c.Feishu.AppID = v
	}
	if v := os.Getenv("FEISHU_APP_SECRET"); v != "" {
		c.Feishu.AppSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("RELAY_API_ADDR"); v != "" {
		c.APIAddr = v
	}
}

// fillDefaults fills in default values for empty fields
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogDir == "" {
		c.LogDir = defaults.LogDir
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.MediaDir == "" {
		c.MediaDir = defaults.MediaDir
	}
	if c.DriftCheckInterval <= 0 {
		c.DriftCheckInterval = defaults.DriftCheckInterval
	}
	if c.StickerReplacements == nil {
		c.StickerReplacements = map[string]string{}
	}
	if c.ImageReplacements == nil {
		c.ImageReplacements = map[string]string{}
	}
	c.SourceChats = cleanChats(c.SourceChats)
	c.DestinationChats = cleanChats(c.DestinationChats)
}

func cleanChats(chats []string) []string {
	seen := make(map[string]bool, len(chats))
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if len(c.SourceChats) == 0 {
		return &ConfigError{Field: "source_chats", Message: "at least one source chat is required"}
	}
	if len(c.DestinationChats) == 0 {
		return &ConfigError{Field: "destination_chats", Message: "at least one destination chat is required"}
	}
	for _, src := range c.SourceChats {
		for _, dst := range c.DestinationChats {
			if src == dst {
				return &ConfigError{Field: "destination_chats", Message: fmt.Sprintf("%s is also a source chat", src)}
			}
		}
	}
	if _, err := c.ScheduleWindow(); err != nil {
		return err
	}
	return nil
}

// ScheduleWindow converts the schedule section to a domain window
func (c *Config) ScheduleWindow() (domain.ScheduleWindow, error) {
	w := domain.ScheduleWindow{Enabled: c.Schedule.Enable, Location: time.Local}

	if c.Schedule.Timezone != "" {
		loc, err := time.LoadLocation(c.Schedule.Timezone)
		if err != nil {
			return w, &ConfigError{Field: "schedule.timezone", Message: err.Error()}
		}
		w.Location = loc
	}

	if !c.Schedule.Enable && c.Schedule.StartTime == "" && c.Schedule.EndTime == "" {
		return w, nil
	}

	start, err := domain.ParseClockTime(c.Schedule.StartTime)
	if err != nil {
		return w, &ConfigError{Field: "schedule.start_time", Message: err.Error()}
	}
	end, err := domain.ParseClockTime(c.Schedule.EndTime)
	if err != nil {
		return w, &ConfigError{Field: "schedule.end_time", Message: err.Error()}
	}
	w.Start, w.End = start, end
	return w, nil
}

// RelaySettings converts to the pipeline's settings snapshot
func (c *Config) RelaySettings() domain.RelaySettings {
	dests := make([]string, len(c.DestinationChats))
	copy(dests, c.DestinationChats)
	return domain.RelaySettings{
		Destinations: dests,
		Filter: domain.FilterRules{
			BlockedWords: append([]string(nil), c.BlockedWords...),
			Replacements: append([]domain.Replacement(nil), c.Replacements...),
		},
		Media: domain.MediaRules{
			StickerReplacements: copyMap(c.StickerReplacements),
			ImageReplacements:   copyMap(c.ImageReplacements),
		},
		TextOnly: c.TextOnly,
	}
}

// IsSource reports whether chatID is a configured source chat
func (c *Config) IsSource(chatID string) bool {
	for _, s := range c.SourceChats {
		if s == chatID {
			return true
		}
	}
	return false
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
