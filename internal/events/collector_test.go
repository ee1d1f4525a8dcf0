package events

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestCollector_StartBindsSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	c := NewCollector(socketPath, nil)

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start collector: %v", err)
	}

	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("expected socket at %s: %v", socketPath, err)
	}
}

func TestCollector_DeliversValidCommand(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())

	socketPath := shortSocketPath(t)
	c := NewCollector(socketPath, nil)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start collector: %v", err)
	}

	if err := Send(socketPath, Command{Action: ActionSelect, Target: "1234:spotify.exe"}); err != nil {
		t.Fatalf("send command: %v", err)
	}

	select {
	case cmd := <-c.Commands():
		if cmd.Action != ActionSelect || cmd.Target != "1234:spotify.exe" {
			t.Fatalf("unexpected command %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("no command within 1s")
	}

	cancel()
	c.Wait()
	if _, ok := <-c.Commands(); ok {
		t.Fatalf("expected commands channel to be closed")
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatalf("expected socket to be removed, stat err = %v", err)
	}
}

func TestCollector_IgnoresMalformedCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	c := NewCollector(socketPath, nil)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start collector: %v", err)
	}

	for _, payload := range []string{`not-json`, `{"action":"explode"}`, `{"action":"hide"}`} {
		if err := sendDatagram(socketPath, []byte(payload)); err != nil {
			t.Fatalf("send datagram: %v", err)
		}
	}

	select {
	case cmd := <-c.Commands():
		t.Fatalf("expected no command, got %+v", cmd)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCollector_RejectsOversizedPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	c := NewCollector(socketPath, nil)
	c.MaxPayloadBytes = 64
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start collector: %v", err)
	}

	big := fmt.Sprintf(`{"action":"hide","target":"%0100d"}`, 0)
	if err := sendDatagram(socketPath, []byte(big)); err != nil {
		t.Fatalf("send datagram: %v", err)
	}

	select {
	case cmd := <-c.Commands():
		t.Fatalf("expected oversized payload to be dropped, got %+v", cmd)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSend_RejectsInvalidCommand(t *testing.T) {
	if err := Send(shortSocketPath(t), Command{Action: "explode"}); err == nil {
		t.Fatalf("expected validation error before dialing")
	}
}

func sendDatagram(socketPath string, payload []byte) error {
	addr, err := net.ResolveUnixAddr("unixgram", socketPath)
	if err != nil {
		return err
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

func shortSocketPath(t *testing.T) string {
	t.Helper()
	base := filepath.Join(os.TempDir(), "vp-cmds")
	if err := os.MkdirAll(base, 0o700); err != nil {
		t.Fatalf("mkdir temp base: %v", err)
	}
	p := filepath.Join(base, fmt.Sprintf("%d-%d.sock", time.Now().UnixNano(), os.Getpid()))
	t.Cleanup(func() {
		_ = os.Remove(p)
	})
	return p
}
