package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// URLTarget identifies a monitored endpoint.
type URLTarget struct {
	Proto    string
	User     string
	Password string
	Host     string
	Port     int
	Path     string
}

// String renders the target as a URL without the password.
func (u URLTarget) String() string {
	var b strings.Builder
	b.WriteString(u.Proto)
	b.WriteString("://")
	if u.User != "" {
		b.WriteString(u.User)
		b.WriteString("@")
	}
	b.WriteString(net.JoinHostPort(u.Host, strconv.Itoa(u.Port)))
	b.WriteString(u.Path)
	return b.String()
}

func (u URLTarget) url() *url.URL {
	path, query, _ := strings.Cut(u.Path, "?")
	out := &url.URL{
		Scheme:   u.Proto,
		Host:     net.JoinHostPort(u.Host, strconv.Itoa(u.Port)),
		Path:     path,
		RawQuery: query,
	}
	if u.User != "" {
		if u.Password != "" {
			out.User = url.UserPassword(u.User, u.Password)
		} else {
			out.User = url.User(u.User)
		}
	}
	return out
}

// ParseURLTarget splits a URL into a target. The scheme defaults to https
// and the port to the scheme's default; the path defaults to "/".
func ParseURLTarget(raw string) (URLTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URLTarget{}, errors.New(errors.ErrProbe, "Empty URL", "")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URLTarget{}, errors.WrapWithCode(err, errors.ErrProbe, "Invalid URL: "+raw, "Use a URL like https://example.com/health")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return URLTarget{}, errors.New(errors.ErrProbe, "Unsupported URL scheme: "+u.Scheme, "Use http or https")
	}
	if u.Hostname() == "" {
		return URLTarget{}, errors.New(errors.ErrProbe, "URL has no host: "+raw, "")
	}

	t := URLTarget{
		Proto: u.Scheme,
		Host:  u.Hostname(),
		Path:  u.Path,
	}
	if t.Path == "" {
		t.Path = "/"
	}
	if u.RawQuery != "" {
		t.Path += "?" + u.RawQuery
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return URLTarget{}, errors.New(errors.ErrProbe, "Invalid port in URL: "+p, "")
		}
		t.Port = port
	} else if t.Proto == "http" {
		t.Port = 80
	} else {
		t.Port = 443
	}

	if u.User != nil {
		t.User = u.User.Username()
		t.Password, _ = u.User.Password()
	}
	return t, nil
}

// URLCheck is the outcome of one GET.
type URLCheck struct {
	Target    URLTarget
	CheckTime time.Time

	// Status is the HTTP status code, or -1 when no response arrived.
	Status       int
	ResponseTime time.Duration // until the first response byte
	TotalTime    time.Duration
	Headers      string
	Content      string

	Certificate string    // leaf certificate subject
	Expire      time.Time // leaf certificate NotAfter, zero without TLS

	Err error
}

// HTTPChecker performs URL checks.
type HTTPChecker struct {
	Client  *http.Client
	MaxBody int64
}

// NewHTTPChecker builds a checker with its own transport.
func NewHTTPChecker(timeout time.Duration, insecure bool, maxBody int64) *HTTPChecker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec // operator opt-in
	transport.DisableKeepAlives = true

	return &HTTPChecker{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		MaxBody: maxBody,
	}
}

// Check GETs the target once.
func (c *HTTPChecker) Check(ctx context.Context, target URLTarget) URLCheck {
	res := URLCheck{Target: target, CheckTime: time.Now(), Status: -1}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.url().String(), nil)
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("User-Agent", "fleet")

	start := time.Now()
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			res.ResponseTime = time.Since(start)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := c.Client.Do(req)
	if err != nil {
		res.TotalTime = time.Since(start)
		res.Err = Categorize(target.Host, err)
		return res
	}
	defer resp.Body.Close()

	limit := c.MaxBody
	if limit <= 0 {
		limit = 64 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	res.TotalTime = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
	}

	res.Status = resp.StatusCode
	res.Content = string(body)

	var headers bytes.Buffer
	resp.Header.Write(&headers)
	res.Headers = headers.String()

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		leaf := resp.TLS.PeerCertificates[0]
		res.Certificate = leaf.Subject.String()
		res.Expire = leaf.NotAfter
	}
	return res
}
