package svc

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Controller for tests across packages. Zero value is
// usable: no services installed, nothing running.
type Fake struct {
	mu        sync.Mutex
	installed map[string]Descriptor
	running   map[string]bool

	// Failure switches, checked before mutating state.
	FailStart     map[string]bool
	FailStop      map[string]bool
	FailUninstall map[string]bool
	FailInstall   map[string]bool

	// StopIgnored leaves the service running after Stop returns, modelling
	// a stop request the service never honors.
	StopIgnored map[string]bool

	Calls []string
}

func (f *Fake) init() {
	if f.installed == nil {
		f.installed = map[string]Descriptor{}
	}
	if f.running == nil {
		f.running = map[string]bool{}
	}
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// Seed registers a service as installed, optionally running.
func (f *Fake) Seed(d Descriptor, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.installed[d.Name] = d
	f.running[d.Name] = running
}

func (f *Fake) IsInstalled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	_, ok := f.installed[name]
	return ok
}

func (f *Fake) IsRunning(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return f.running[name]
}

func (f *Fake) Start(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.record("start %s", name)
	if f.FailStart[name] {
		return fmt.Errorf("SVC_START: injected failure for %s", name)
	}
	if _, ok := f.installed[name]; !ok {
		return fmt.Errorf("SVC_START: %s not installed", name)
	}
	f.running[name] = true
	return nil
}

func (f *Fake) Stop(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.record("stop %s", name)
	if f.FailStop[name] {
		return fmt.Errorf("SVC_STOP: injected failure for %s", name)
	}
	if !f.StopIgnored[name] {
		f.running[name] = false
	}
	return nil
}

func (f *Fake) Install(d Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.record("install %s", d.Name)
	if f.FailInstall[d.Name] {
		return fmt.Errorf("SVC_INSTALL: injected failure for %s", d.Name)
	}
	f.installed[d.Name] = d
	return nil
}

func (f *Fake) Uninstall(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.record("uninstall %s", name)
	if f.FailUninstall[name] {
		return fmt.Errorf("SVC_UNINSTALL: injected failure for %s", name)
	}
	delete(f.installed, name)
	delete(f.running, name)
	return nil
}

// Installed returns the descriptor a service was registered with.
func (f *Fake) Installed(name string) (Descriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	d, ok := f.installed[name]
	return d, ok
}

var _ Controller = (*Fake)(nil)
