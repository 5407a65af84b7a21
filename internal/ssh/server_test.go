package ssh

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"agentManager/internal/models"
)

const (
	testUser     = "agent"
	testPassword = "secret"
)

type winChange struct {
	Cols, Rows uint32
}

// testServer is an in-process SSH server: password auth, exec through
// /bin/sh with exit-status, pty-req, an echoing shell, window-change and the
// sftp subsystem.
type testServer struct {
	t        *testing.T
	listener net.Listener
	config   *ssh.ServerConfig

	dials atomic.Int32

	mu      sync.Mutex
	conns   []*ssh.ServerConn
	pty     *winChange
	resizes []winChange
	execs   []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{t: t, listener: l, config: cfg}
	go s.serve()
	t.Cleanup(func() {
		_ = l.Close()
		s.dropAll()
	})
	return s
}

func (s *testServer) addr() string { return s.listener.Addr().String() }

func (s *testServer) connection(id string) models.Connection {
	host, port, _ := net.SplitHostPort(s.addr())
	p, _ := strconv.Atoi(port)
	return models.Connection{ID: id, Host: host, Port: p, Username: testUser, Auth: models.AuthPassword}
}

func (s *testServer) params(id string) ConnectParams {
	return ConnectParams{Connection: s.connection(id), Secret: Secret{Password: testPassword}}
}

// pool returns a pool that dials this server and counts dials.
func (s *testServer) pool(opts Options) *Pool {
	d := &net.Dialer{}
	opts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		s.dials.Add(1)
		return d.DialContext(ctx, network, addr)
	}
	opts.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	p := NewPool(opts)
	s.t.Cleanup(p.Close)
	return p
}

// stallConn stops delivering inbound bytes once stalled, like a peer that
// still accepts writes but never answers.
type stallConn struct {
	net.Conn
	stalled   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *stallConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if c.stalled.Load() {
		<-c.closed
		return 0, net.ErrClosed
	}
	return n, err
}

func (c *stallConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

// stallingPool is like pool but hands out stallConns; dialed returns them in
// dial order.
func (s *testServer) stallingPool(opts Options) (*Pool, func() []*stallConn) {
	var (
		mu    sync.Mutex
		conns []*stallConn
	)
	d := &net.Dialer{}
	opts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		s.dials.Add(1)
		nc, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		c := &stallConn{Conn: nc, closed: make(chan struct{})}
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()
		return c, nil
	}
	opts.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	p := NewPool(opts)
	s.t.Cleanup(p.Close)
	return p, func() []*stallConn {
		mu.Lock()
		defer mu.Unlock()
		return append([]*stallConn(nil), conns...)
	}
}

func (s *testServer) dropAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *testServer) lastResize() (winChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.resizes) == 0 {
		return winChange{}, false
	}
	return s.resizes[len(s.resizes)-1], true
}

func (s *testServer) serve() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(nc)
	}
}

func (s *testServer) handleConn(nc net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		_ = nc.Close()
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, sconn)
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func sendExit(ch ssh.Channel, code int) {
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
	_ = ch.Close()
}

func (s *testServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			s.mu.Lock()
			s.execs = append(s.execs, payload.Command)
			s.mu.Unlock()
			go runExec(ch, payload.Command)

		case "pty-req":
			var payload struct {
				Term                     string
				Cols, Rows, Width, Height uint32
				Modes                    string
			}
			if err := ssh.Unmarshal(req.Payload, &payload); err == nil {
				s.mu.Lock()
				s.pty = &winChange{Cols: payload.Cols, Rows: payload.Rows}
				s.mu.Unlock()
			}
			_ = req.Reply(true, nil)

		case "window-change":
			var payload struct{ Cols, Rows, Width, Height uint32 }
			if err := ssh.Unmarshal(req.Payload, &payload); err == nil {
				s.mu.Lock()
				s.resizes = append(s.resizes, winChange{Cols: payload.Cols, Rows: payload.Rows})
				s.mu.Unlock()
			}
			_ = req.Reply(true, nil)

		case "shell":
			_ = req.Reply(true, nil)
			go func() {
				_, _ = io.Copy(ch, ch)
				sendExit(ch, 0)
			}()

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				srv, err := sftp.NewServer(ch)
				if err != nil {
					_ = ch.Close()
					return
				}
				_ = srv.Serve()
				_ = srv.Close()
			}()

		default:
			_ = req.Reply(false, nil)
		}
	}
}

func runExec(ch ssh.Channel, command string) {
	cmd := exec.Command("/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	_, _ = ch.Write(stdout.Bytes())
	_, _ = ch.Stderr().Write(stderr.Bytes())

	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = 127
	}
	sendExit(ch, code)
}
