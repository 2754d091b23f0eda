package adapterb

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/tomnet/tom/internal/tomerr"
)

type captureWriter struct {
	data []byte
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.data = append(c.data, p...)
	return len(p), nil
}

func newTestSession(t *testing.T, pattern string) (*session, *captureWriter, *io.PipeWriter) {
	t.Helper()
	re, err := regexp.Compile(pattern)
	if err != nil {
		t.Fatalf("compile pattern: %v", err)
	}
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	stdin := &captureWriter{}
	return &session{stdin: stdin, stdout: pr, prompt: re}, stdin, pw
}

func TestWaitForStopsOnPromptMatch(t *testing.T) {
	s, _, pw := newTestSession(t, defaultPromptPattern)
	go func() {
		_, _ = pw.Write([]byte("Cisco IOS Software\r\nrouter> "))
	}()

	out, err := s.waitFor(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("waitFor: %v", err)
	}
	if !regexp.MustCompile(`router>\s*$`).MatchString(out) {
		t.Fatalf("expected output to end at prompt, got %q", out)
	}
}

func TestWaitForTimesOutWithoutPrompt(t *testing.T) {
	s, _, pw := newTestSession(t, defaultPromptPattern)
	go func() {
		_, _ = pw.Write([]byte("still booting, no prompt yet"))
	}()

	_, err := s.waitFor(context.Background(), 30*time.Millisecond)
	tomErr, ok := tomerr.As(err)
	if !ok || tomErr.Kind != tomerr.KindTimeoutError {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}
}

func TestSendWritesCommandThenReadsUntilPrompt(t *testing.T) {
	s, stdin, pw := newTestSession(t, defaultPromptPattern)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = pw.Write([]byte("show version\r\nCisco IOS 15.1\r\nrouter# "))
	}()

	out, err := s.Send(context.Background(), "show version", time.Second)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(stdin.data) != "show version\n" {
		t.Fatalf("expected command written to stdin, got %q", stdin.data)
	}
	if !regexp.MustCompile(`router#\s*$`).MatchString(out) {
		t.Fatalf("expected output to end at prompt, got %q", out)
	}
}

func TestWaitForRespectsContextCancellation(t *testing.T) {
	s, _, _ := newTestSession(t, defaultPromptPattern)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.waitFor(ctx, time.Second)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
