package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Models        ModelsConfig        `yaml:"models"`
	Routing       RoutingConfig       `yaml:"routing"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Storage       StorageConfig       `yaml:"storage"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
}

type ModelsConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Planner   ModelRef                  `yaml:"planner"`
	Chat      ModelRef                  `yaml:"chat"`
}

type ProviderConfig struct {
	Backend string `yaml:"backend"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ModelRef points a logical role (planner or chat) at a provider/model
// pair from the providers map.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type RoutingConfig struct {
	UseIntent      *bool   `yaml:"use_intent"`
	MinWorkerConf  float64 `yaml:"min_worker_conf"`
	AmbiguityDelta float64 `yaml:"ambiguity_delta"`
	MinToolsConf   float64 `yaml:"min_tools_conf"`
}

type OrchestrationConfig struct {
	TotalTimeoutS        int            `yaml:"total_timeout_s"`
	DefaultBudgetS       int            `yaml:"default_budget_s"`
	WorkerBudgetsS       map[string]int `yaml:"worker_budgets_s"`
	SafetyMarginS        int            `yaml:"safety_margin_s"`
	MaxReclarify         *int           `yaml:"max_reclarify"`
	RequireMediaForTools *bool          `yaml:"require_media_for_tools"`
}

type SessionsConfig struct {
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	MaxMessages int    `yaml:"max_messages"`
	MaxIdleDays int    `yaml:"max_idle_days"`
}

type StorageConfig struct {
	ReportsDir  string `yaml:"reports_dir"`
	ScriptsDir  string `yaml:"scripts_dir"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

type GatewayConfig struct {
	Listen string `yaml:"listen"`
}

type MaintenanceConfig struct {
	PruneSchedule string `yaml:"prune_schedule"`
	JobsFile      string `yaml:"jobs_file"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvInProviders(cfg *Config) {
	for name, p := range cfg.Models.Providers {
		p.BaseURL = expandEnv(p.BaseURL)
		p.APIKey = expandEnv(p.APIKey)
		cfg.Models.Providers[name] = p
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvInProviders(&cfg)
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Default returns a config with every knob at its default, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Routing.UseIntent == nil {
		c.Routing.UseIntent = boolPtr(true)
	}
	if c.Routing.MinWorkerConf == 0 {
		c.Routing.MinWorkerConf = 0.55
	}
	if c.Routing.AmbiguityDelta == 0 {
		c.Routing.AmbiguityDelta = 0.15
	}
	if c.Routing.MinToolsConf == 0 {
		c.Routing.MinToolsConf = 0.60
	}
	if c.Orchestration.TotalTimeoutS == 0 {
		c.Orchestration.TotalTimeoutS = 600
	}
	if c.Orchestration.DefaultBudgetS == 0 {
		c.Orchestration.DefaultBudgetS = 180
	}
	if c.Orchestration.SafetyMarginS == 0 {
		c.Orchestration.SafetyMarginS = 2
	}
	if c.Orchestration.MaxReclarify == nil {
		c.Orchestration.MaxReclarify = intPtr(2)
	}
	if c.Orchestration.RequireMediaForTools == nil {
		c.Orchestration.RequireMediaForTools = boolPtr(true)
	}
	if c.Sessions.MaxMessages == 0 {
		c.Sessions.MaxMessages = 5
	}
	if c.Sessions.DataDir == "" {
		c.Sessions.DataDir = "./data"
	}
	if c.Storage.ReportsDir == "" {
		c.Storage.ReportsDir = "./outputs"
	}
	if c.Storage.ScriptsDir == "" {
		c.Storage.ScriptsDir = "./scripts"
	}
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = ":8077"
	}
}

// applyEnvOverrides maps the flat environment knobs onto the config.
// Environment wins over file values.
func (c *Config) applyEnvOverrides() {
	if v, ok := lookupFloat("MIN_AGENT_CONF"); ok {
		c.Routing.MinWorkerConf = v
	}
	if v, ok := lookupFloat("AMBIGUITY_DELTA"); ok {
		c.Routing.AmbiguityDelta = v
	}
	if v, ok := lookupFloat("MIN_TOOLS_CONF"); ok {
		c.Routing.MinToolsConf = v
	}
	if v, ok := lookupBool("USE_INTENT_ROUTING"); ok {
		c.Routing.UseIntent = boolPtr(v)
	}
	if v, ok := lookupInt("ORCHESTRATION_TOTAL_TIMEOUT_S"); ok {
		c.Orchestration.TotalTimeoutS = v
	}
	if v, ok := lookupInt("PER_AGENT_DEFAULT_BUDGET_S"); ok {
		c.Orchestration.DefaultBudgetS = v
	}
	if v, ok := lookupInt("SCHEDULER_SAFETY_MARGIN_S"); ok {
		c.Orchestration.SafetyMarginS = v
	}
	if v, ok := lookupInt("MAX_RECLARIFY_PER_SESSION"); ok {
		c.Orchestration.MaxReclarify = intPtr(v)
	}
	if v, ok := lookupBool("REQUIRE_VIDEO_FOR_TOOL_REQUEST"); ok {
		c.Orchestration.RequireMediaForTools = boolPtr(v)
	}
	if v, ok := lookupInt("CHAT_HISTORY_MAX_SAVED_MESSAGES"); ok {
		c.Sessions.MaxMessages = v
	}
	if raw, ok := os.LookupEnv("AGENT_BUDGETS_S"); ok && raw != "" {
		var budgets map[string]int
		if err := json.Unmarshal([]byte(raw), &budgets); err == nil {
			c.Orchestration.WorkerBudgetsS = budgets
		}
	}
}

// WorkerBudgets converts the per-worker second overrides to durations.
func (c *Config) WorkerBudgets() map[string]time.Duration {
	if len(c.Orchestration.WorkerBudgetsS) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.Orchestration.WorkerBudgetsS))
	for name, secs := range c.Orchestration.WorkerBudgetsS {
		out[name] = time.Duration(secs) * time.Second
	}
	return out
}

func lookupFloat(name string) (float64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }
