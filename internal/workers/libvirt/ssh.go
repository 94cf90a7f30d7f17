package libvirt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// runner executes shell commands on the hypervisor.
type runner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

type sshRunner struct {
	client *ssh.Client
}

// dialSSH opens an SSH connection with password and/or key authentication.
func dialSSH(ctx context.Context, s Settings, timeout time.Duration) (runner, error) {
	config, err := clientConfig(s)
	if err != nil {
		return nil, err
	}
	config.Timeout = timeout

	addr := net.JoinHostPort(s.Hostname, strconv.Itoa(s.Port))
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	// config.Timeout only covers ssh.Dial; bound the handshake on the raw conn.
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	cancelled := !stop()
	if err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("SSH handshake interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	if cancelled {
		sshConn.Close()
		return nil, fmt.Errorf("SSH handshake interrupted: %w", ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}
	return &sshRunner{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func clientConfig(s Settings) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if s.Password != "" {
		authMethods = append(authMethods, ssh.Password(s.Password))
	}

	if s.PrivateKey != "" {
		var (
			key ssh.Signer
			err error
		)
		if s.Passphrase != "" {
			key, err = ssh.ParsePrivateKeyWithPassphrase([]byte(s.PrivateKey), []byte(s.Passphrase))
		} else {
			key, err = ssh.ParsePrivateKey([]byte(s.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(key))
	}

	if len(authMethods) == 0 {
		return nil, errors.New("no authentication method provided (password or private_key required)")
	}

	return &ssh.ClientConfig{
		User:            s.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // inventory only, no host key store
	}, nil
}

// Run executes cmd in a new session. The session is closed when ctx is done.
func (r *sshRunner) Run(ctx context.Context, cmd string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(cmd)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("command %q failed: %w", cmd, res.err)
		}
		return strings.TrimSpace(string(res.out)), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
