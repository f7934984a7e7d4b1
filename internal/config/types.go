package config

// Config is the frozen v1 agent schema.
type Config struct {
	Version     int    `toml:"version"`
	Region      string `toml:"region"`
	TenantID    string `toml:"tenant_id"`
	SiteID      string `toml:"site_id,omitempty"`
	PackageName string `toml:"package_name"`
	Cron        string `toml:"cron"`
	Root        string `toml:"root"`
	InstallDir  string `toml:"install_dir"`

	Logging  LoggingConfig     `toml:"logging"`
	Metrics  MetricsConfig     `toml:"metrics"`
	BaseURLs map[string]string `toml:"base_urls"`
	Services []ServiceConfig   `toml:"services"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type MetricsConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ServiceConfig declares one managed service. Executable is where the binary
// lives once installed; PackagedExe is its file name inside the extracted
// package payload.
type ServiceConfig struct {
	Name        string `toml:"name"`
	Executable  string `toml:"executable"`
	PackagedExe string `toml:"packaged_exe"`
	InstallArgs bool   `toml:"install_args"`
}

// BaseURL returns the distribution endpoint for the configured region.
func (c Config) BaseURL() string {
	return c.BaseURLs[c.Region]
}
