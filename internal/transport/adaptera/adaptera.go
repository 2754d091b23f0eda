// Package adaptera implements transport.Adapter as exec-per-command SSH:
// every command opens its own ssh.Session against a shared ssh.Client,
// runs to completion, and is torn down. This is the simpler of the two
// transport families — no persistent shell state, no prompt matching,
// suited to devices whose CLI behaves like a Unix exec target per command.
package adaptera

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/tomnet/tom/internal/credential"
	"github.com/tomnet/tom/internal/tomerr"
	"github.com/tomnet/tom/internal/transport"
)

const defaultConnectTimeout = 10 * time.Second

// Adapter opens exec-per-command SSH sessions.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Open(ctx context.Context, host string, port int, driver string, options map[string]string, cred *credential.Pair) (transport.Session, error) {
	config, err := clientConfig(cred)
	if err != nil {
		return nil, tomerr.Wrap(tomerr.KindAuthFailure, err, "build ssh client config")
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	client, err := sshDialContext(ctx, addr, config)
	if err != nil {
		return nil, tomerr.Wrap(tomerr.KindTransportError, err, "ssh dial "+addr)
	}
	return &session{client: client}, nil
}

func clientConfig(cred *credential.Pair) (*ssh.ClientConfig, error) {
	auth := []ssh.AuthMethod{ssh.Password(cred.Password)}
	if signers, err := agentSigners(); err == nil && len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}
	return &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         defaultConnectTimeout,
	}, nil
}

// agentSigners offers keys from a running ssh-agent, when SSH_AUTH_SOCK
// is set, as a fallback authentication method alongside password auth.
func agentSigners() ([]ssh.Signer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	return agent.NewClient(conn).Signers()
}

func sshDialContext(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		ch <- result{client, err}
	}()
	select {
	case r := <-ch:
		return r.client, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type session struct {
	client *ssh.Client
	closed bool
}

func (s *session) Send(ctx context.Context, command string, timeout time.Duration) (string, error) {
	sshSession, err := s.client.NewSession()
	if err != nil {
		return "", tomerr.Wrap(tomerr.KindTransportError, err, "open ssh session")
	}
	defer sshSession.Close()

	var stdout, stderr bytes.Buffer
	sshSession.Stdout = &stdout
	sshSession.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sshSession.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return "", tomerr.Wrap(tomerr.KindTransportError, err, "command failed: "+stderr.String())
		}
		return stdout.String(), nil
	case <-time.After(timeout):
		sshSession.Signal(ssh.SIGKILL)
		return "", tomerr.New(tomerr.KindTimeoutError, "command timed out: "+command)
	case <-ctx.Done():
		sshSession.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
