//go:build !windows

package svc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"updagent/internal/logging"
)

// Runner executes a system command, injectable so tests never shell out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (r execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return err
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return nil
}

// SystemdController manages service registrations as system units. Install
// writes a unit file and enables it; state queries go through systemctl.
type SystemdController struct {
	unitDir string
	runner  Runner
	log     logging.Logger
}

func NewController() Controller {
	return &SystemdController{
		unitDir: "/etc/systemd/system",
		runner:  execRunner{},
		log:     logging.New("svc"),
	}
}

func (c *SystemdController) unitPath(name string) string {
	return filepath.Join(c.unitDir, name+".service")
}

func (c *SystemdController) IsInstalled(name string) bool {
	_, err := os.Stat(c.unitPath(name))
	return err == nil
}

func (c *SystemdController) IsRunning(name string) bool {
	err := c.runner.Run(context.Background(), "systemctl", "is-active", "--quiet", name)
	return err == nil
}

func (c *SystemdController) Start(name string) error {
	if err := c.runner.Run(context.Background(), "systemctl", "start", name); err != nil {
		return fmt.Errorf("SVC_START: %w", err)
	}
	return nil
}

func (c *SystemdController) Stop(name string) error {
	if err := c.runner.Run(context.Background(), "systemctl", "stop", name); err != nil {
		return fmt.Errorf("SVC_STOP: %w", err)
	}
	return nil
}

func (c *SystemdController) Install(d Descriptor) error {
	if err := os.MkdirAll(c.unitDir, 0o755); err != nil {
		return fmt.Errorf("SVC_INSTALL_DIR: %w", err)
	}
	execStart := shellEscape(d.Executable)
	for _, arg := range d.Args {
		execStart += " " + shellEscape(arg)
	}
	unit := fmt.Sprintf(`[Unit]
Description=%s managed service

[Service]
Type=simple
ExecStart=%s
Restart=on-failure

[Install]
WantedBy=multi-user.target
`, d.Name, execStart)
	if err := os.WriteFile(c.unitPath(d.Name), []byte(unit), 0o644); err != nil {
		return fmt.Errorf("SVC_INSTALL_UNIT: %w", err)
	}
	ctx := context.Background()
	if err := c.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		c.log.WithError(err).Warn("daemon-reload failed")
	}
	if err := c.runner.Run(ctx, "systemctl", "enable", d.Name); err != nil {
		return fmt.Errorf("SVC_INSTALL_ENABLE: %w", err)
	}
	return nil
}

func (c *SystemdController) Uninstall(name string) error {
	ctx := context.Background()
	if err := c.runner.Run(ctx, "systemctl", "disable", "--now", name); err != nil {
		c.log.WithError(err).Warnf("disable %s failed", name)
	}
	if err := os.Remove(c.unitPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("SVC_UNINSTALL_UNIT: %w", err)
	}
	if err := c.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		c.log.WithError(err).Warn("daemon-reload failed")
	}
	return nil
}

func shellEscape(v string) string {
	if strings.ContainsAny(v, " \t\n\"'") {
		return strconv.Quote(v)
	}
	return v
}
