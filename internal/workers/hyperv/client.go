package hyperv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"
)

// shell runs PowerShell scripts on the hypervisor and returns trimmed stdout.
type shell interface {
	RunPowerShell(ctx context.Context, script string) (string, error)
}

// commander is the part of *winrm.Client the shell needs.
type commander interface {
	RunWithContextWithString(ctx context.Context, command string, stdin string) (string, string, int, error)
}

// winrmShell wraps the WinRM client for executing PowerShell commands.
type winrmShell struct {
	client commander
}

// dialWinRM creates a WinRM shell from the node settings.
// An empty domain uses Basic auth, a domain switches to NTLM.
func dialWinRM(s Settings, timeout time.Duration) (shell, error) {
	endpoint := winrm.NewEndpoint(
		s.Hostname,
		s.Port,
		s.UseHTTPS,
		s.Insecure,
		nil,
		nil,
		nil,
		timeout,
	)

	var (
		client *winrm.Client
		err    error
	)
	if s.Domain != "" {
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter {
			return &winrm.ClientNTLM{}
		}
		client, err = winrm.NewClientWithParameters(endpoint, s.Domain+`\`+s.Username, s.Password, params)
	} else {
		client, err = winrm.NewClient(endpoint, s.Username, s.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create WinRM client: %w", err)
	}
	return &winrmShell{client: client}, nil
}

func (w *winrmShell) RunPowerShell(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	psCmd := fmt.Sprintf("powershell.exe -NoProfile -NonInteractive -Command \"%s\"",
		strings.ReplaceAll(script, "\"", "`\""))

	stdout, stderr, exitCode, err := w.client.RunWithContextWithString(ctx, psCmd, "")
	if err != nil {
		return "", fmt.Errorf("WinRM execution failed: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("PowerShell command failed (exit code %d): %s", exitCode, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}
