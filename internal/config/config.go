package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the worker
type Config struct {
	LogLevel     string           `yaml:"log_level"`
	SharePoint   SharePointConfig `yaml:"sharepoint"`
	Browser      BrowserConfig    `yaml:"browser"`
	Lists        []ListConfig     `yaml:"lists"`
	Destinations []string         `yaml:"destinations"`
	LookupPath   string           `yaml:"lookup_path"`
	ReportDir    string           `yaml:"report_dir"`
	Mail         MailConfig       `yaml:"mail"`
	Schedule     ScheduleConfig   `yaml:"schedule"`
	Metrics      MetricsConfig    `yaml:"metrics"`
	Storage      StorageConfig    `yaml:"storage"`
	Redis        RedisConfig      `yaml:"redis"`
	Database     DatabaseConfig   `yaml:"database"`
	Server       ServerConfig     `yaml:"server"`
}

// SharePointConfig holds the remote list service settings
type SharePointConfig struct {
	SiteURL            string `yaml:"site_url"`
	PageSize           int    `yaml:"page_size"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	DirectoryBatchSize int    `yaml:"directory_batch_size"`
	MaxRetries         int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c SharePointConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BrowserConfig holds the interactive login session settings
type BrowserConfig struct {
	LoginURL            string   `yaml:"login_url"`
	ReadySelectors      []string `yaml:"ready_selectors"`
	Bin                 string   `yaml:"bin"`
	Headless            bool     `yaml:"headless"`
	DebuggerURL         string   `yaml:"debugger_url"`
	UserDataDir         string   `yaml:"user_data_dir"`
	LoginTimeoutSeconds int      `yaml:"login_timeout_seconds"`
}

// LoginTimeout returns the bounded wait for an interactive login
func (c BrowserConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSeconds) * time.Second
}

// List roles. The primary list feeds the full metrics report; secondary lists
// get the pending-by-discipline report.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
)

// ListConfig describes one punch list to extract
type ListConfig struct {
	Name       string   `yaml:"name"`
	APIName    string   `yaml:"api_name"`
	OutputFile string   `yaml:"output_file"`
	Role       string   `yaml:"role"`
	Columns    []string `yaml:"columns"`
}

// Configured reports whether the list has a real API name. Placeholder names
// such as "[API_NAME_EHOUSE]" mark lists that are not deployed yet.
func (l ListConfig) Configured() bool {
	name := strings.TrimSpace(l.APIName)
	return name != "" && !strings.HasPrefix(name, "[")
}

// MailConfig holds notification settings
type MailConfig struct {
	From              string   `yaml:"from"`
	FromName          string   `yaml:"from_name"`
	To                []string `yaml:"to"`
	ClosureRecipients []string `yaml:"closure_recipients"`
	ClosureBCC        []string `yaml:"closure_bcc"`
	Signature         string   `yaml:"signature"`
	Project           string   `yaml:"project"`
	Mention           string   `yaml:"mention"`
	ClosureAddressee  string   `yaml:"closure_addressee"`
	Region            string   `yaml:"region"`
	AccessKey         string   `yaml:"access_key"`
	SecretKey         string   `yaml:"secret_key"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScheduleConfig holds the interval and time-of-day triggers
type ScheduleConfig struct {
	IntervalMinutes    int      `yaml:"interval_minutes"`
	TimesOfDay         []string `yaml:"times_of_day"`
	Timezone           string   `yaml:"timezone"`
	ClosureWindowStart int      `yaml:"closure_window_start"`
	ClosureWindowEnd   int      `yaml:"closure_window_end"`
}

// Interval returns the extraction interval as a duration
func (c ScheduleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Location resolves the schedule timezone, falling back to local time.
func (c ScheduleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MetricsConfig holds the business-rule field names. They differ between
// deployments, so none of them is hard-coded in the engine.
type MetricsConfig struct {
	StatusField          string   `yaml:"status_field"`
	PendingStatus        string   `yaml:"pending_status"`
	OriginGroupField     string   `yaml:"origin_group_field"`
	WatchedGroups        []string `yaml:"watched_groups"`
	EngineeringGroup     string   `yaml:"engineering_group"`
	AcceptanceField      string   `yaml:"acceptance_field"`
	RoleTargetField      string   `yaml:"role_target_field"`
	RoleClearedField     string   `yaml:"role_cleared_field"`
	SecondaryTargetField string   `yaml:"secondary_target_field"`
	DisciplineField      string   `yaml:"discipline_field"`
	SecondaryPending     string   `yaml:"secondary_pending_status"`
}

// StorageConfig holds AWS settings for s3:// destinations
type StorageConfig struct {
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	return c.AWSProfile
}

// RedisConfig holds the optional lock backend
type RedisConfig struct {
	URL        string `yaml:"url"`
	LockKey    string `yaml:"lock_key"`
	LockTTLMin int    `yaml:"lock_ttl_minutes"`
}

// LockTTL returns the cycle lock TTL
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMin) * time.Minute
}

// DatabaseConfig holds the optional run history database
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig holds the optional status API settings
type ServerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port for the status API
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultReadySelectors are the elements that only render after a
// successful SharePoint login.
func DefaultReadySelectors() []string {
	return []string{"[role='grid']", "#O365_MainLink_Me", "#O365_HeaderLeftRegion", "#spCommandBar"}
}

// DefaultMetrics returns the rule set used by the Topside deployment.
func DefaultMetrics() MetricsConfig {
	return MetricsConfig{
		StatusField:          "Status",
		PendingStatus:        "Pending PB Reply",
		OriginGroupField:     "Punched by (Group)",
		WatchedGroups:        []string{"PB - Operation", "SEA/KBR"},
		EngineeringGroup:     "PB - Engineering",
		AcceptanceField:      "Petrobras Operation accept closing? (Y/N)",
		RoleTargetField:      "Petrobras Operation Target Date",
		RoleClearedField:     "Date Cleared by Petrobras Operation",
		SecondaryTargetField: "Petrobras Target Date",
		DisciplineField:      "Petrobras Discipline",
		SecondaryPending:     "Pending Petrobras",
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Seeded before decoding: max_retries: 0 is a valid setting that turns
	// retries off.
	cfg := Config{SharePoint: SharePointConfig{MaxRetries: 3}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SharePoint.PageSize == 0 {
		cfg.SharePoint.PageSize = 5000
	}
	if cfg.SharePoint.TimeoutSeconds == 0 {
		cfg.SharePoint.TimeoutSeconds = 60
	}
	if cfg.SharePoint.DirectoryBatchSize == 0 {
		cfg.SharePoint.DirectoryBatchSize = 100
	}
	if cfg.SharePoint.MaxRetries < 0 {
		cfg.SharePoint.MaxRetries = 0
	}
	if len(cfg.Browser.ReadySelectors) == 0 {
		cfg.Browser.ReadySelectors = DefaultReadySelectors()
	}
	if cfg.Browser.LoginTimeoutSeconds == 0 {
		cfg.Browser.LoginTimeoutSeconds = 180
	}
	for i := range cfg.Lists {
		if cfg.Lists[i].Role == "" {
			cfg.Lists[i].Role = RoleSecondary
		}
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = os.TempDir()
	}
	if cfg.Mail.Region == "" {
		cfg.Mail.Region = "us-east-1"
	}
	if cfg.Mail.TimeoutSeconds == 0 {
		cfg.Mail.TimeoutSeconds = 30
	}
	if cfg.Mail.Project == "" {
		cfg.Mail.Project = "Design Review TS"
	}
	if cfg.Mail.ClosureAddressee == "" {
		cfg.Mail.ClosureAddressee = "team"
	}
	if cfg.Schedule.IntervalMinutes == 0 {
		cfg.Schedule.IntervalMinutes = 15
	}
	if cfg.Schedule.TimesOfDay == nil {
		cfg.Schedule.TimesOfDay = []string{"0 8 * * *", "0 12 * * *", "30 16 * * *"}
	}
	if cfg.Schedule.ClosureWindowStart == 0 && cfg.Schedule.ClosureWindowEnd == 0 {
		cfg.Schedule.ClosureWindowStart = 7
		cfg.Schedule.ClosureWindowEnd = 9
	}
	fillMetricsDefaults(&cfg.Metrics)
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = cfg.Mail.Region
	}
	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "punchlist-cycle"
	}
	if cfg.Redis.LockTTLMin == 0 {
		cfg.Redis.LockTTLMin = 30
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
}

func fillMetricsDefaults(m *MetricsConfig) {
	d := DefaultMetrics()
	if m.StatusField == "" {
		m.StatusField = d.StatusField
	}
	if m.PendingStatus == "" {
		m.PendingStatus = d.PendingStatus
	}
	if m.OriginGroupField == "" {
		m.OriginGroupField = d.OriginGroupField
	}
	if len(m.WatchedGroups) == 0 {
		m.WatchedGroups = d.WatchedGroups
	}
	if m.EngineeringGroup == "" {
		m.EngineeringGroup = d.EngineeringGroup
	}
	if m.AcceptanceField == "" {
		m.AcceptanceField = d.AcceptanceField
	}
	if m.RoleTargetField == "" {
		m.RoleTargetField = d.RoleTargetField
	}
	if m.RoleClearedField == "" {
		m.RoleClearedField = d.RoleClearedField
	}
	if m.SecondaryTargetField == "" {
		m.SecondaryTargetField = d.SecondaryTargetField
	}
	if m.DisciplineField == "" {
		m.DisciplineField = d.DisciplineField
	}
	if m.SecondaryPending == "" {
		m.SecondaryPending = d.SecondaryPending
	}
}

// Validate checks the settings nothing downstream can work without.
func (c *Config) Validate() error {
	if c.SharePoint.SiteURL == "" {
		return fmt.Errorf("config: sharepoint.site_url is required")
	}
	if len(c.Lists) == 0 {
		return fmt.Errorf("config: at least one list is required")
	}
	primaries := 0
	for _, l := range c.Lists {
		if l.Name == "" || l.OutputFile == "" {
			return fmt.Errorf("config: list %q needs name and output_file", l.Name)
		}
		if len(l.Columns) == 0 {
			return fmt.Errorf("config: list %q has no columns", l.Name)
		}
		switch l.Role {
		case RolePrimary:
			primaries++
		case RoleSecondary:
		default:
			return fmt.Errorf("config: list %q has unknown role %q", l.Name, l.Role)
		}
	}
	if primaries > 1 {
		return fmt.Errorf("config: only one primary list is supported, got %d", primaries)
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("config: at least one destination is required")
	}
	if c.Schedule.ClosureWindowStart > c.Schedule.ClosureWindowEnd {
		return fmt.Errorf("config: closure window start %d after end %d", c.Schedule.ClosureWindowStart, c.Schedule.ClosureWindowEnd)
	}
	return nil
}

// PrimaryList returns the list that feeds the metrics report, if any.
func (c *Config) PrimaryList() (ListConfig, bool) {
	for _, l := range c.Lists {
		if l.Role == RolePrimary {
			return l, true
		}
	}
	return ListConfig{}, false
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SHAREPOINT_SITE_URL"); v != "" {
		cfg.SharePoint.SiteURL = v
	}
	if v := os.Getenv("BROWSER_DEBUGGER_URL"); v != "" {
		cfg.Browser.DebuggerURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.Region = v
	}
	if v := os.Getenv("MAIL_TO"); v != "" {
		cfg.Mail.To = splitList(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
