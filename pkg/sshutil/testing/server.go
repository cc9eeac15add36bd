package testing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rileyhilliard/fleet/pkg/sshutil"
	"golang.org/x/crypto/ssh"
)

// ServerOptions configures authentication for a test Server.
type ServerOptions struct {
	// Password, when set, is accepted for any user.
	Password string
	// AuthorizedKeys are accepted for any user.
	AuthorizedKeys []ssh.PublicKey
	// HandshakeDelay stalls every connection before the SSH handshake.
	HandshakeDelay time.Duration
}

// Server is an in-process SSH server whose exec requests are served by a
// Runner, usually a MockClient.
type Server struct {
	Addr    string
	HostKey ssh.Signer

	backend  sshutil.Runner
	config   *ssh.ServerConfig
	delay    time.Duration
	listener net.Listener

	mu     sync.Mutex
	conns  []net.Conn
	logins []string
	wg     sync.WaitGroup
}

// StartServer listens on a random loopback port.
func StartServer(backend sshutil.Runner, opts ServerOptions) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	hostKey, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}

	s := &Server{HostKey: hostKey, backend: backend, delay: opts.HandshakeDelay}

	config := &ssh.ServerConfig{}
	if opts.Password != "" {
		config.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if string(password) != opts.Password {
				return nil, errors.New("wrong password")
			}
			s.recordLogin(conn.User())
			return &ssh.Permissions{}, nil
		}
	}
	if len(opts.AuthorizedKeys) > 0 {
		config.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			for _, k := range opts.AuthorizedKeys {
				if bytes.Equal(k.Marshal(), key.Marshal()) {
					s.recordLogin(conn.User())
					return &ssh.Permissions{}, nil
				}
			}
			return nil, errors.New("unknown public key")
		}
	}
	config.AddHostKey(hostKey)
	s.config = config

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.listener = listener
	s.Addr = listener.Addr().String()

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Close stops the listener and drops every open connection.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// Logins returns the users that authenticated, in order.
func (s *Server) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logins...)
}

func (s *Server) recordLogin(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins = append(s.logins, user)
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(netConn net.Conn) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go s.exec(ctx, ch, payload.Command)
		case "signal":
			cancel()
		default:
			if req.WantReply {
				req.Reply(true, nil)
			}
		}
	}
}

func (s *Server) exec(ctx context.Context, ch ssh.Channel, cmd string) {
	defer ch.Close()

	code, err := s.backend.Run(ctx, cmd, ch, ch, ch.Stderr())
	if err != nil {
		// no exit-status: the client sees the command end abnormally
		return
	}
	status := struct{ Status uint32 }{uint32(code)}
	ch.SendRequest("exit-status", false, ssh.Marshal(&status))
}
