package netutil

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestWaitForPort_Success(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start listener: %v", err)
	}
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("Failed to split host/port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	if err := WaitForPort(context.Background(), "127.0.0.1", port, 5*time.Second); err != nil {
		t.Errorf("Expected port to be reachable, got: %v", err)
	}
}

func TestWaitForPort_Timeout(t *testing.T) {
	// Port 1 on localhost is almost certainly closed.
	err := WaitForPort(context.Background(), "127.0.0.1", 1, 1500*time.Millisecond)
	if err == nil {
		t.Error("Expected timeout error for closed port, got nil")
	}
}

func TestWaitForPort_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForPort(ctx, "127.0.0.1", 1, 10*time.Second)
	if err == nil {
		t.Error("Expected error for cancelled context, got nil")
	}
}
