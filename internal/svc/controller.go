// Package svc abstracts OS-native service control behind a small capability
// so the update engine never touches platform types directly.
package svc

// Descriptor is the fixed configuration for one managed service,
// constructed once at agent startup and never mutated.
type Descriptor struct {
	// Name is the stable OS service identifier.
	Name string
	// Executable is the installed binary the registration points at.
	Executable string
	// PackagedExe is the file name carried inside the fetched package.
	PackagedExe string
	// Args are the registration-time arguments. The watchdog takes none.
	Args []string
}

// Controller is the four-state service-control capability. Implementations
// exist for systemd and the Windows Service Control Manager; tests use Fake.
type Controller interface {
	IsInstalled(name string) bool
	IsRunning(name string) bool
	Start(name string) error
	Stop(name string) error
	Install(d Descriptor) error
	Uninstall(name string) error
}
