package notify

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// smtpServer is a minimal plaintext SMTP server that accepts every message.
type smtpServer struct {
	ln net.Listener

	mu        sync.Mutex
	delivered []string
	sessions  int
}

func startSMTPServer(t *testing.T) *smtpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &smtpServer{ln: ln}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *smtpServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpServer) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	reply("220 localhost ESMTP test")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case cmd == "DATA":
			reply("354 end data with <CR><LF>.<CR><LF>")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.delivered = append(s.delivered, body.String())
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *smtpServer) port(t *testing.T) int {
	t.Helper()
	_, p, _ := net.SplitHostPort(s.ln.Addr().String())
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return port
}

func (s *smtpServer) stats() (delivered []string, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...), s.sessions
}

func newTestTransport(t *testing.T, srv *smtpServer) *SMTPTransport {
	t.Helper()
	tr, err := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: srv.port(t), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewSMTPTransport: %v", err)
	}
	return tr
}

func testMessage(subject string) *Message {
	return &Message{
		From:    "grow@ultimmarketing.com",
		To:      "supervisor@balance.test",
		Subject: subject,
		Text:    "hola",
		HTML:    "<p>hola</p>",
	}
}

func TestSMTPTransport_Send(t *testing.T) {
	srv := startSMTPServer(t)
	tr := newTestTransport(t, srv)

	id, err := tr.Send(context.Background(), testMessage("cita"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id == "" {
		t.Fatalf("empty message id")
	}
	delivered, _ := srv.stats()
	if len(delivered) != 1 || !strings.Contains(delivered[0], "supervisor@balance.test") {
		t.Fatalf("delivered=%q", delivered)
	}
}

func TestSMTPTransport_ConcurrentSendsAndVerify(t *testing.T) {
	srv := startSMTPServer(t)
	tr := newTestTransport(t, srv)

	const n = 8
	errs := make(chan error, n+1)
	var wg sync.WaitGroup
	wg.Add(n + 1)
	go func() {
		defer wg.Done()
		errs <- tr.Verify(context.Background())
	}()
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := tr.Send(context.Background(), testMessage("cita "+strconv.Itoa(i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent use failed: %v", err)
		}
	}
	delivered, sessions := srv.stats()
	if len(delivered) != n {
		t.Fatalf("delivered %d messages, want %d", len(delivered), n)
	}
	if sessions != n+1 {
		t.Fatalf("server saw %d sessions, want one per call (%d)", sessions, n+1)
	}
}

func TestSMTPTransport_VerifyUnreachable(t *testing.T) {
	srv := startSMTPServer(t)
	port := srv.port(t)
	_ = srv.ln.Close()

	tr, err := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewSMTPTransport: %v", err)
	}
	if err := tr.Verify(context.Background()); err == nil {
		t.Fatalf("expected verify error against a closed port")
	}
}
