package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func TestRunServesHealthAndShutsDown(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TRADE_JOURNAL_JWT_SECRET", "test-secret")
	t.Setenv("TRADE_JOURNAL_DB_PATH", filepath.Join(tmp, "journal.db"))
	t.Setenv("LLM_PROVIDER", "placeholder")

	addrCh := make(chan net.Addr, 1)
	origOnListen := onListen
	onListen = func(addr net.Addr) { addrCh <- addr }
	defer func() { onListen = origOnListen }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--data-dir", tmp, "--port", "0", "--env-file", filepath.Join(tmp, "none.env")})
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/health", addr))
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["provider"] != "placeholder" {
		t.Fatalf("unexpected health response %d %v", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not exit")
	}
}

func TestRunRequiresJWTSecret(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TRADE_JOURNAL_JWT_SECRET", "")
	t.Setenv("TRADE_JOURNAL_DB_PATH", filepath.Join(tmp, "journal.db"))

	err := run(context.Background(), []string{"--data-dir", tmp, "--port", "0", "--env-file", filepath.Join(tmp, "none.env")})
	if err == nil {
		t.Fatalf("expected error without a jwt secret")
	}
}
