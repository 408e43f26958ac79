package opener

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Launcher hands targets to the operating system
type Launcher interface {
	// Open opens target (a URL or absolute path). A non-empty with names
	// the application to use instead of the default handler.
	Open(ctx context.Context, target, with string) error

	// Reveal shows path in the system file manager
	Reveal(ctx context.Context, path string) error
}

// CommandRunner starts an external program without waiting for it
type CommandRunner func(ctx context.Context, name string, args ...string) error

// OSLauncher launches targets with the platform's opener command
type OSLauncher struct {
	goos string
	run  CommandRunner
}

// NewOSLauncher creates a launcher for the running platform
func NewOSLauncher() *OSLauncher {
	return &OSLauncher{goos: runtime.GOOS, run: startDetached}
}

// Open implements Launcher
func (l *OSLauncher) Open(ctx context.Context, target, with string) error {
	name, args, err := l.openCommand(target, with)
	if err != nil {
		return err
	}
	if err := l.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	return nil
}

// Reveal implements Launcher
func (l *OSLauncher) Reveal(ctx context.Context, path string) error {
	var name string
	var args []string
	switch l.goos {
	case "darwin":
		name, args = "open", []string{"-R", path}
	case "windows":
		name, args = "explorer", []string{"/select," + path}
	case "linux", "freebsd", "openbsd", "netbsd":
		name, args = "xdg-open", []string{filepath.Dir(path)}
	default:
		return fmt.Errorf("reveal is not supported on %s", l.goos)
	}
	if err := l.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to reveal %s: %w", path, err)
	}
	return nil
}

func (l *OSLauncher) openCommand(target, with string) (string, []string, error) {
	switch l.goos {
	case "darwin":
		if with != "" {
			return "open", []string{"-a", with, target}, nil
		}
		return "open", []string{target}, nil
	case "windows":
		if with != "" {
			return with, []string{target}, nil
		}
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		if with != "" {
			return with, []string{target}, nil
		}
		return "xdg-open", []string{target}, nil
	default:
		return "", nil, fmt.Errorf("opening is not supported on %s", l.goos)
	}
}

func startDetached(ctx context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
