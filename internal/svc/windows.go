//go:build windows

package svc

import (
	"fmt"

	wsvc "golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"updagent/internal/logging"
)

// SCMController manages service registrations through the Windows Service
// Control Manager.
type SCMController struct {
	log logging.Logger
}

func NewController() Controller {
	return &SCMController{log: logging.New("svc")}
}

func (c *SCMController) withService(name string, fn func(*mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("SVC_SCM_CONNECT: %w", err)
	}
	defer m.Disconnect()
	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("SVC_OPEN: %w", err)
	}
	defer s.Close()
	return fn(s)
}

func (c *SCMController) IsInstalled(name string) bool {
	m, err := mgr.Connect()
	if err != nil {
		c.log.WithError(err).Error("cannot reach service control manager")
		return false
	}
	defer m.Disconnect()
	s, err := m.OpenService(name)
	if err != nil {
		return false
	}
	s.Close()
	return true
}

func (c *SCMController) IsRunning(name string) bool {
	running := false
	err := c.withService(name, func(s *mgr.Service) error {
		status, err := s.Query()
		if err != nil {
			return err
		}
		running = status.State == wsvc.Running
		return nil
	})
	if err != nil {
		return false
	}
	return running
}

func (c *SCMController) Start(name string) error {
	return c.withService(name, func(s *mgr.Service) error {
		if err := s.Start(); err != nil {
			return fmt.Errorf("SVC_START: %w", err)
		}
		return nil
	})
}

func (c *SCMController) Stop(name string) error {
	return c.withService(name, func(s *mgr.Service) error {
		status, err := s.Query()
		if err != nil {
			return fmt.Errorf("SVC_STOP_QUERY: %w", err)
		}
		if status.State == wsvc.Stopped {
			return nil
		}
		if _, err := s.Control(wsvc.Stop); err != nil {
			return fmt.Errorf("SVC_STOP: %w", err)
		}
		return nil
	})
}

func (c *SCMController) Install(d Descriptor) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("SVC_SCM_CONNECT: %w", err)
	}
	defer m.Disconnect()
	cfg := mgr.Config{
		DisplayName: d.Name,
		StartType:   mgr.StartAutomatic,
	}
	s, err := m.CreateService(d.Name, d.Executable, cfg, d.Args...)
	if err != nil {
		return fmt.Errorf("SVC_INSTALL: %w", err)
	}
	s.Close()
	return nil
}

func (c *SCMController) Uninstall(name string) error {
	return c.withService(name, func(s *mgr.Service) error {
		if err := s.Delete(); err != nil {
			return fmt.Errorf("SVC_UNINSTALL: %w", err)
		}
		return nil
	})
}
