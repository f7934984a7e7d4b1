package config

import "runtime"

const (
	SchemaVersion = 1

	DefaultRegion      = "americas"
	DefaultPackageName = "StreamAgent.zip"
	DefaultCron        = "0 0 1 * * ?"
)

// ExeSuffix is the platform executable extension.
func ExeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func defaultInstallDir() string {
	if runtime.GOOS == "windows" {
		return `C:\Program Files\StreamAgent`
	}
	return "/opt/stream-agent"
}

// DefaultConfig returns a fully-populated v1 config document. Tenant, site
// and endpoint values are deployment-specific and left empty.
func DefaultConfig() Config {
	return Config{
		Version:     SchemaVersion,
		Region:      DefaultRegion,
		PackageName: DefaultPackageName,
		Cron:        DefaultCron,
		Root:        "~/.updagent",
		InstallDir:  defaultInstallDir(),
		Logging:     LoggingConfig{Level: "info"},
		BaseURLs:    map[string]string{},
		Services: []ServiceConfig{
			{Name: "StreamAgentController", PackagedExe: "StreamAgentController" + ExeSuffix(), InstallArgs: true},
			{Name: "StreamAgentWatchdog", PackagedExe: "StreamAgentWatchdog" + ExeSuffix()},
		},
	}
}
