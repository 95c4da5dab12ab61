package email

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/khaledhikmat/aicam-go/service/config"
)

func smtpConfig(t *testing.T, addr string) config.IService {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	cfg := fmt.Sprintf(`{"security": {"smtp_addr": "%s", "smtp_from": "alerts@aicam.local"}}`, addr)
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgsvc, err := config.NewJSONFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return cfgsvc
}

func TestSendRequiresRecipient(t *testing.T) {
	svc := NewSMTP(smtpConfig(t, "localhost:25"))
	if err := svc.Send("", "subject", "body"); err == nil {
		t.Fatal("send without a recipient succeeded")
	}
}

// A server that accepts and never speaks must not hold the notifier hostage;
// the deadline has to cut the conversation off.
func TestSendBoundedByDeadlineOnStalledServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Hold the connection open silently until the client gives up.
		io.Copy(io.Discard, conn)
		conn.Close()
	}()

	svc := &smtpService{CfgSvc: smtpConfig(t, ln.Addr().String()), timeout: 300 * time.Millisecond}

	start := time.Now()
	err = svc.Send("ops@example.com", "subject", "body")
	if err == nil {
		t.Fatal("send against a silent server succeeded")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send took %v, want it cut off by the deadline", elapsed)
	}
}

func TestSendDeliversMessage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 fake smtp\r\n")

		var body strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case inData && line == ".":
				inData = false
				received <- body.String()
				fmt.Fprintf(conn, "250 queued\r\n")
			case inData:
				body.WriteString(line + "\n")
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprintf(conn, "250 fake greets you\r\n")
			case line == "DATA":
				inData = true
				fmt.Fprintf(conn, "354 send it\r\n")
			case line == "QUIT":
				fmt.Fprintf(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 ok\r\n")
			}
		}
	}()

	svc := NewSMTP(smtpConfig(t, ln.Addr().String()))
	if err := svc.Send("ops@example.com", "Security Alert: motion_detected", "a body line"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-received:
		if !strings.Contains(msg, "To: ops@example.com") {
			t.Errorf("message misses recipient header:\n%s", msg)
		}
		if !strings.Contains(msg, "Subject: Security Alert: motion_detected") {
			t.Errorf("message misses subject header:\n%s", msg)
		}
		if !strings.Contains(msg, "a body line") {
			t.Errorf("message misses the body:\n%s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the server")
	}
}
