package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"updagent/internal/agent"
	"updagent/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	newAgent := func() (*agent.Agent, error) {
		cfg, err := config.Ensure(configPath)
		if err != nil {
			return nil, err
		}
		return agent.New(cfg)
	}

	cmd := &cobra.Command{
		Use:           "updagent",
		Short:         "Keeps the stream agent services installed and current",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newRunCmd(newAgent))
	cmd.AddCommand(newInstallCmd(newAgent, &jsonOutput))
	cmd.AddCommand(newUpgradeCmd(newAgent, &jsonOutput))
	cmd.AddCommand(newStatusCmd(newAgent, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

func newRunCmd(newAgent func() (*agent.Agent, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent: initial install, then scheduled upgrade passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAgent()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

func newInstallCmd(newAgent func() (*agent.Agent, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Perform a single initial-install pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAgent()
			if err != nil {
				return err
			}
			installed, err := a.PerformInitialInstall(cmd.Context())
			if err != nil {
				return err
			}
			return print(*jsonOutput, map[string]bool{"installed": installed}, fmt.Sprintf("installed=%v", installed))
		},
	}
}

func newUpgradeCmd(newAgent func() (*agent.Agent, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Perform a single upgrade pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAgent()
			if err != nil {
				return err
			}
			updated, err := a.PerformUpgrade(cmd.Context())
			if err != nil {
				return err
			}
			return print(*jsonOutput, map[string]bool{"updated": updated}, fmt.Sprintf("updated=%v", updated))
		},
	}
}

type serviceStatus struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Running   bool   `json:"running"`
}

func newStatusCmd(newAgent func() (*agent.Agent, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show managed service state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAgent()
			if err != nil {
				return err
			}
			statuses := make([]serviceStatus, 0, len(a.Cfg.Services))
			for _, s := range a.Cfg.Services {
				statuses = append(statuses, serviceStatus{
					Name:      s.Name,
					Installed: a.Ctl.IsInstalled(s.Name),
					Running:   a.Ctl.IsRunning(s.Name),
				})
			}
			if *jsonOutput {
				return print(true, statuses, "")
			}
			for _, st := range statuses {
				fmt.Printf("%s installed=%v running=%v\n", st.Name, st.Installed, st.Running)
			}
			return nil
		},
	}
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
