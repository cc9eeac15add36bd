package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/fleet/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error

	// Delay holds the command open before it answers. A context that ends
	// first aborts the command as a real session would.
	Delay time.Duration
}

// MockClient simulates an SSH connection for testing.
// It parses common shell commands and executes them against a virtual filesystem.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	home     string
	fs       *MockFS
	closed   bool
	commands map[string]CommandResponse // pattern -> response
	history  []string
	stdin    map[string][]byte
}

// NewMockClient creates a new mock SSH client with an empty filesystem and
// /root as the login directory.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		home:     "/root",
		fs:       NewMockFS(),
		commands: make(map[string]CommandResponse),
		stdin:    make(map[string][]byte),
	}
}

var _ sshutil.Runner = (*MockClient)(nil)

// SetHome sets the directory relative paths resolve against.
func (m *MockClient) SetHome(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.home = dir
}

// Run executes cmd against the canned responses or the virtual filesystem.
func (m *MockClient) Run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	var input []byte
	if stdin != nil {
		input, _ = io.ReadAll(stdin)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return -1, errors.New("connection closed")
	}
	m.history = append(m.history, cmd)
	m.stdin[cmd] = input
	resp, canned := m.lookup(cmd)
	m.mu.Unlock()

	if !canned {
		resp = m.parseAndExecute(cmd, input)
	}

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	if resp.Error != nil {
		return -1, resp.Error
	}
	if stdout != nil && len(resp.Stdout) > 0 {
		stdout.Write(resp.Stdout)
	}
	if stderr != nil && len(resp.Stderr) > 0 {
		stderr.Write(resp.Stderr)
	}
	return resp.ExitCode, nil
}

// lookup finds a canned response, exact matches first. Caller holds m.mu.
func (m *MockClient) lookup(cmd string) (CommandResponse, bool) {
	if resp, ok := m.commands[cmd]; ok {
		return resp, true
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp, true
		}
	}
	return CommandResponse{}, false
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// History returns every command run so far, in order.
func (m *MockClient) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Stdin returns what was fed to the last run of cmd.
func (m *MockClient) Stdin(cmd string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stdin[cmd]
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

func (m *MockClient) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return filepath.Join(m.home, path)
}

// parseAndExecute runs a "&&" chain of the commands fleet issues, stopping
// at the first failure.
func (m *MockClient) parseAndExecute(cmd string, stdin []byte) CommandResponse {
	var out, errOut bytes.Buffer
	for _, part := range strings.Split(cmd, " && ") {
		resp := m.execOne(strings.TrimSpace(part), stdin)
		out.Write(resp.Stdout)
		errOut.Write(resp.Stderr)
		if resp.ExitCode != 0 || resp.Error != nil {
			resp.Stdout, resp.Stderr = out.Bytes(), errOut.Bytes()
			return resp
		}
	}
	return CommandResponse{Stdout: out.Bytes(), Stderr: errOut.Bytes()}
}

func (m *MockClient) execOne(cmd string, stdin []byte) CommandResponse {
	cmd = strings.TrimSuffix(cmd, " 2>/dev/null")
	cmd = strings.TrimSuffix(cmd, " 2>&1")

	switch {
	case strings.HasPrefix(cmd, "mkdir "):
		return m.handleMkdir(cmd)
	case strings.HasPrefix(cmd, "chmod "):
		return m.handleChmod(cmd)
	case strings.HasPrefix(cmd, "echo "):
		return m.handleEcho(cmd)
	case strings.HasPrefix(cmd, "cat > "):
		path := m.abs(extractPath(strings.TrimPrefix(cmd, "cat > ")))
		if err := m.fs.WriteFile(path, stdin); err != nil {
			return failure("cat: " + err.Error())
		}
		return CommandResponse{}
	case strings.HasPrefix(cmd, "cat "):
		return m.handleCatRead(cmd)
	case strings.HasPrefix(cmd, "rm -rf "), strings.HasPrefix(cmd, "rm -f "):
		fields := strings.SplitN(cmd, " ", 3)
		_ = m.fs.Remove(m.abs(extractPath(fields[2])))
		return CommandResponse{}
	case strings.HasPrefix(cmd, "test -d "):
		return exitIf(!m.fs.IsDir(m.abs(extractPath(strings.TrimPrefix(cmd, "test -d ")))))
	case strings.HasPrefix(cmd, "test -f "):
		return exitIf(!m.fs.IsFile(m.abs(extractPath(strings.TrimPrefix(cmd, "test -f ")))))
	case strings.HasPrefix(cmd, "uname"):
		return handleUname(cmd)
	case strings.HasPrefix(cmd, "hostname"):
		return CommandResponse{Stdout: []byte(m.host + "\n")}
	case cmd == "true":
		return CommandResponse{}
	case cmd == "false":
		return CommandResponse{ExitCode: 1}
	}

	// Unknown command - return success by default
	return CommandResponse{}
}

func failure(msg string) CommandResponse {
	return CommandResponse{Stderr: []byte(msg + "\n"), ExitCode: 1}
}

func exitIf(fail bool) CommandResponse {
	if fail {
		return CommandResponse{ExitCode: 1}
	}
	return CommandResponse{}
}

// handleMkdir processes: mkdir [-p] "path" or mkdir [-p] path
func (m *MockClient) handleMkdir(cmd string) CommandResponse {
	args := strings.TrimSpace(strings.TrimPrefix(cmd, "mkdir "))

	createParents := false
	if strings.HasPrefix(args, "-p ") {
		createParents = true
		args = strings.TrimSpace(strings.TrimPrefix(args, "-p "))
	}

	path := extractPath(args)
	if path == "" {
		return failure("mkdir: missing operand")
	}
	path = m.abs(path)

	if createParents {
		if err := m.fs.MkdirAll(path); err != nil {
			return failure("mkdir: cannot create directory: " + err.Error())
		}
		return CommandResponse{}
	}

	// plain mkdir needs the parent to exist
	parent := filepath.Dir(path)
	if parent != "/" && !m.fs.IsDir(parent) {
		return failure(fmt.Sprintf("mkdir: cannot create directory '%s': No such file or directory", path))
	}
	if err := m.fs.Mkdir(path); err != nil {
		return failure(fmt.Sprintf("mkdir: cannot create directory '%s': File exists", path))
	}
	return CommandResponse{}
}

// handleChmod processes: chmod 0700 path
func (m *MockClient) handleChmod(cmd string) CommandResponse {
	fields := strings.Fields(cmd)
	if len(fields) != 3 {
		return failure("chmod: missing operand")
	}
	mode, err := strconv.ParseUint(fields[1], 8, 32)
	if err != nil {
		return failure("chmod: invalid mode: " + fields[1])
	}
	path := m.abs(extractPath(fields[2]))
	if err := m.fs.Chmod(path, fsMode(mode)); err != nil {
		return failure(fmt.Sprintf("chmod: cannot access '%s': No such file or directory", path))
	}
	return CommandResponse{}
}

// handleEcho processes: echo 'text' [>> path]
func (m *MockClient) handleEcho(cmd string) CommandResponse {
	args := strings.TrimPrefix(cmd, "echo ")
	text, rest := args, ""
	if idx := strings.LastIndex(args, " >> "); idx != -1 {
		text, rest = args[:idx], args[idx+4:]
	}
	text = unquote(strings.TrimSpace(text))

	if rest == "" {
		return CommandResponse{Stdout: []byte(text + "\n")}
	}
	path := m.abs(extractPath(rest))
	if err := m.fs.AppendFile(path, []byte(text+"\n")); err != nil {
		return failure(fmt.Sprintf("sh: %s: %v", path, err))
	}
	return CommandResponse{}
}

// handleCatRead processes: cat "path" or cat path
func (m *MockClient) handleCatRead(cmd string) CommandResponse {
	path := extractPath(strings.TrimPrefix(cmd, "cat "))
	if path == "" {
		return failure("cat: missing file operand")
	}
	content, err := m.fs.ReadFile(m.abs(path))
	if err != nil {
		return failure("cat: " + path + ": No such file or directory")
	}
	return CommandResponse{Stdout: content}
}

// handleUname processes: uname [-s|-r|-a]
func handleUname(cmd string) CommandResponse {
	switch {
	case strings.Contains(cmd, "-r"):
		return CommandResponse{Stdout: []byte("5.15.0-generic\n")}
	case strings.Contains(cmd, "-a"):
		return CommandResponse{Stdout: []byte("Linux mockhost 5.15.0-generic #1 SMP x86_64 GNU/Linux\n")}
	default:
		return CommandResponse{Stdout: []byte("Linux\n")}
	}
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// extractPath extracts a path from a command argument.
// Handles both quoted and unquoted paths.
func extractPath(arg string) string {
	arg = strings.TrimSpace(arg)

	if strings.HasPrefix(arg, "\"") {
		if endQuote := strings.Index(arg[1:], "\""); endQuote != -1 {
			return arg[1 : endQuote+1]
		}
	}
	if strings.HasPrefix(arg, "'") {
		if endQuote := strings.Index(arg[1:], "'"); endQuote != -1 {
			return arg[1 : endQuote+1]
		}
	}

	parts := strings.Fields(arg)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
