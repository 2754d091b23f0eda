// Package adapterb implements transport.Adapter as a persistent
// interactive SSH shell: one PTY session stays open for the life of the
// connection, and each command's output is delimited by matching the
// device's CLI prompt rather than waiting for process exit. This suits
// devices whose CLI is a long-lived shell rather than a per-command exec
// target (most network OS CLIs).
package adapterb

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tomnet/tom/internal/credential"
	"github.com/tomnet/tom/internal/tomerr"
	"github.com/tomnet/tom/internal/transport"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPromptPattern  = `[\r\n][\w.\-]+[>#]\s*$`
)

// Adapter opens persistent interactive-shell SSH sessions.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Open(ctx context.Context, host string, port int, driver string, options map[string]string, cred *credential.Pair) (transport.Session, error) {
	config := &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         defaultConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client, err := sshDialContext(ctx, addr, config)
	if err != nil {
		return nil, tomerr.Wrap(tomerr.KindTransportError, err, "ssh dial "+addr)
	}

	promptPattern := options["prompt_regex"]
	if promptPattern == "" {
		promptPattern = defaultPromptPattern
	}
	prompt, err := regexp.Compile(promptPattern)
	if err != nil {
		client.Close()
		return nil, tomerr.Wrap(tomerr.KindTransportError, err, "compile prompt regex")
	}

	sshSession, stdin, stdout, err := openShell(client)
	if err != nil {
		client.Close()
		return nil, tomerr.Wrap(tomerr.KindTransportError, err, "open interactive shell")
	}

	s := &session{client: client, sshSession: sshSession, stdin: stdin, stdout: stdout, prompt: prompt}
	if _, err := s.waitFor(ctx, defaultConnectTimeout); err != nil {
		s.Close()
		return nil, tomerr.Wrap(tomerr.KindTransportError, err, "read initial banner/prompt")
	}
	return s, nil
}

func openShell(client *ssh.Client) (*ssh.Session, writeCloser, reader, error) {
	sshSession, err := client.NewSession()
	if err != nil {
		return nil, nil, nil, err
	}
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	modes := ssh.TerminalModes{ssh.ECHO: 0, ssh.TTY_OP_ISPEED: 14400, ssh.TTY_OP_OSPEED: 14400}
	if err := sshSession.RequestPty("vt100", 200, 50, modes); err != nil {
		return nil, nil, nil, err
	}
	if err := sshSession.Shell(); err != nil {
		return nil, nil, nil, err
	}
	return sshSession, stdin, stdout, nil
}

type writeCloser interface {
	Write(p []byte) (int, error)
}

type reader interface {
	Read(p []byte) (int, error)
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
	client     *ssh.Client
	sshSession *ssh.Session
	stdin      writeCloser
	stdout     reader
	prompt     *regexp.Regexp
	closed     bool
}

func (s *session) Send(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if _, err := s.stdin.Write([]byte(command + "\n")); err != nil {
		return "", tomerr.Wrap(tomerr.KindTransportError, err, "write command")
	}
	return s.waitFor(ctx, timeout)
}

// waitFor reads from the shell until the device prompt reappears in the
// accumulated buffer, the timeout elapses, or ctx is canceled.
func (s *session) waitFor(ctx context.Context, timeout time.Duration) (string, error) {
	type chunk struct {
		data []byte
		err  error
	}
	ch := make(chan chunk, 16)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := s.stdout.Read(buf)
			if n > 0 {
				ch <- chunk{data: append([]byte(nil), buf[:n]...)}
			}
			if err != nil {
				ch <- chunk{err: err}
				return
			}
		}
	}()

	var out bytes.Buffer
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case c := <-ch:
			if c.err != nil {
				return out.String(), tomerr.Wrap(tomerr.KindTransportError, c.err, "read from shell")
			}
			out.Write(c.data)
			if s.prompt.Match(out.Bytes()) {
				return out.String(), nil
			}
		case <-timer.C:
			return out.String(), tomerr.New(tomerr.KindTimeoutError, "timed out waiting for device prompt")
		case <-ctx.Done():
			return out.String(), ctx.Err()
		}
	}
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
