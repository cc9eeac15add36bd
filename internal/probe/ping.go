// Package probe implements the per-target network checks: ICMP echo with a
// TCP connect fallback, HTTP(S) GET with certificate expiry, and SNMP GET.
// Every check returns a result value; failures are recorded in the result
// rather than returned as errors.
package probe

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/fleet/internal/logger"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// protocolICMP is the IANA protocol number of ICMP for IPv4.
const protocolICMP = 1

// Ping methods reported in PingResult.Method.
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

// PingResult is the outcome of probing one address.
type PingResult struct {
	Address  string
	Hostname string
	FQDN     string

	// Reachable is the success flag; Delay is only meaningful when it is set.
	Reachable bool
	Delay     time.Duration

	Method string
	Err    error
}

// Resolver performs reverse lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Pinger probes addresses for reachability.
type Pinger struct {
	Timeout time.Duration

	// TCPPort is dialed when ICMP sockets can't be opened, or always when TCPOnly is set.
	TCPPort int
	TCPOnly bool

	// Privileged uses raw ICMP sockets instead of unprivileged datagram ping.
	Privileged bool

	Resolver Resolver
	Logger   logger.Logger

	seq uint32
}

// NewPinger creates a Pinger using the system resolver.
func NewPinger(timeout time.Duration, tcpPort int, log logger.Logger) *Pinger {
	if log == nil {
		log = logger.Noop()
	}
	return &Pinger{
		Timeout:  timeout,
		TCPPort:  tcpPort,
		Resolver: net.DefaultResolver,
		Logger:   log,
	}
}

// Ping resolves addr's name and checks whether it answers.
func (p *Pinger) Ping(ctx context.Context, addr string) PingResult {
	res := PingResult{Address: addr, Hostname: addr, FQDN: addr}
	p.resolve(ctx, &res)

	if !p.TCPOnly {
		delay, ok, err := p.echo(ctx, addr)
		if err == nil {
			res.Method = MethodICMP
			res.Reachable = ok
			res.Delay = delay
			return res
		}
		p.logger().Debug("icmp unavailable for %s, falling back to tcp/%d: %v", addr, p.TCPPort, err)
	}

	res.Method = MethodTCP
	res.Delay, res.Reachable, res.Err = TCPConnect(ctx, addr, p.TCPPort, p.Timeout)
	return res
}

func (p *Pinger) logger() logger.Logger {
	if p.Logger == nil {
		return logger.Noop()
	}
	return p.Logger
}

func (p *Pinger) resolve(ctx context.Context, res *PingResult) {
	if p.Resolver == nil {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	names, err := p.Resolver.LookupAddr(lookupCtx, res.Address)
	if err != nil || len(names) == 0 {
		return
	}
	fqdn := strings.TrimSuffix(names[0], ".")
	if fqdn == "" {
		return
	}
	res.FQDN = fqdn
	res.Hostname = strings.SplitN(fqdn, ".", 2)[0]
}

// echo sends one ICMP echo request. A non-nil error means no ICMP socket
// could be used and the caller should fall back to TCP.
func (p *Pinger) echo(ctx context.Context, addr string) (time.Duration, bool, error) {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return 0, false, &net.AddrError{Err: "not an IPv4 address", Addr: addr}
	}

	network := "udp4"
	if p.Privileged {
		network = "ip4:icmp"
	}
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.Privileged {
		dst = &net.IPAddr{IP: ip}
	}

	payload := make([]byte, 16)
	if _, err := rand.Read(payload); err != nil {
		return 0, false, err
	}
	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	id := os.Getpid() & 0xffff

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, false, err
	}

	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, false, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		// the socket works but the send failed, so the host counts as down
		return 0, false, nil
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, false, nil
		}
		if !samePeer(peer, ip) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok || body.Seq != seq || !bytes.Equal(body.Data, payload) {
			continue
		}
		// datagram sockets get their ID rewritten by the kernel
		if p.Privileged && body.ID != id {
			continue
		}
		return time.Since(start), true, nil
	}
}

func samePeer(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}

// TCPConnect dials addr:port. An accepted or actively refused connection both
// mean the host is up; anything else (timeout, unreachable) means down.
func TCPConnect(ctx context.Context, addr string, port int, timeout time.Duration) (time.Duration, bool, error) {
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	elapsed := time.Since(start)
	if err == nil {
		conn.Close()
		return elapsed, true, nil
	}

	pe := Categorize(addr, err)
	if pe.Reason == FailRefused {
		return elapsed, true, nil
	}
	return 0, false, pe
}
