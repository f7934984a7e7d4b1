// Package policy reads the optional declarative documents embedded in a
// fetched package. Both readers are total: any I/O or parse problem yields
// the documented default instead of an error, and unknown or mistyped fields
// are ignored.
package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"updagent/internal/logging"
)

const (
	InstallFileName = "install_config.json"
	UpgradeFileName = "upgrade_config.json"
)

// InstallPolicy governs first-run installation. Present is false when the
// document was absent or unreadable.
type InstallPolicy struct {
	Present         bool
	Enabled         bool
	Reason          string
	RequiredVersion string
	Timestamp       string
	Services        []ServiceEntry
}

// ServiceEntry names a service the package expects to install.
type ServiceEntry struct {
	Name string
	Exe  string
}

// UpgradePolicy selects between the restart-only and full-reinstall
// replacement paths. Absence defaults to restart-only.
type UpgradePolicy struct {
	Present         bool
	FullReinstall   bool
	Reason          string
	RequiredVersion string
	Timestamp       string
}

var log = logging.New("policy")

// ReadInstallPolicy loads install_config.json from the extracted payload.
func ReadInstallPolicy(payloadDir string) InstallPolicy {
	doc, ok := readDoc(filepath.Join(payloadDir, InstallFileName))
	if !ok {
		return InstallPolicy{}
	}
	p := InstallPolicy{
		Present:         true,
		Enabled:         boolField(doc, "enable_initial_install"),
		Reason:          stringField(doc, "install_reason"),
		RequiredVersion: stringField(doc, "required_version"),
		Timestamp:       stringField(doc, "timestamp"),
	}
	if raw, ok := doc["services"].([]any); ok {
		for _, item := range raw {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := stringField(entry, "name")
			exe := stringField(entry, "exe")
			if name == "" || exe == "" {
				continue
			}
			p.Services = append(p.Services, ServiceEntry{Name: name, Exe: exe})
		}
	}
	logVersion(p.RequiredVersion)
	return p
}

// ReadUpgradePolicy loads upgrade_config.json from the extracted payload.
func ReadUpgradePolicy(payloadDir string) UpgradePolicy {
	doc, ok := readDoc(filepath.Join(payloadDir, UpgradeFileName))
	if !ok {
		return UpgradePolicy{}
	}
	p := UpgradePolicy{
		Present:         true,
		FullReinstall:   boolField(doc, "full_reinstall"),
		Reason:          stringField(doc, "reason"),
		RequiredVersion: stringField(doc, "required_version"),
		Timestamp:       stringField(doc, "timestamp"),
	}
	logVersion(p.RequiredVersion)
	return p
}

// ShouldInstall applies the install decision rule: an absent document means
// install iff something is missing; a present document's enable flag wins
// except that missing services always force an install.
func ShouldInstall(p InstallPolicy, allInstalled bool) bool {
	if !p.Present {
		return !allInstalled
	}
	if !p.Enabled && !allInstalled {
		log.Warn("install policy disables installation but services are missing, installing anyway")
		return true
	}
	return p.Enabled
}

func readDoc(path string) (map[string]any, bool) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("unreadable policy document %s, using defaults", path)
		}
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(blob, &doc); err != nil || doc == nil {
		log.Warnf("malformed policy document %s, using defaults", path)
		return nil, false
	}
	return doc, true
}

func boolField(doc map[string]any, key string) bool {
	v, _ := doc[key].(bool)
	return v
}

func stringField(doc map[string]any, key string) string {
	v, _ := doc[key].(string)
	return v
}

// logVersion surfaces the declared required_version. The value is advisory:
// an invalid version is logged, never enforced.
func logVersion(v string) {
	if v == "" {
		return
	}
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		log.Warnf("policy declares invalid required_version %q", v)
		return
	}
	log.Infof("policy requires version %s", v)
}
