package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrSessionClosed is returned when executing against a session that
// has exited or been closed.
var ErrSessionClosed = errors.New("python session closed")

// driver is the in-process protocol loop: JSON request lines on stdin,
// one JSON response line per request on stdout. All cells share one
// namespace, like a notebook kernel.
const driver = `
import contextlib, io, json, sys, traceback

ns = {"__name__": "__main__"}

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)

    if req.get("op") == "names":
        names = sorted(k for k in ns if not k.startswith("__"))
        sys.stdout.write(json.dumps({"names": names}) + "\n")
        sys.stdout.flush()
        continue

    code = req.get("code", "")
    out, err = io.StringIO(), io.StringIO()
    resp = {"success": True, "value": ""}
    try:
        with contextlib.redirect_stdout(out), contextlib.redirect_stderr(err):
            try:
                compiled = compile(code, "<cell>", "eval")
            except SyntaxError:
                exec(compile(code, "<cell>", "exec"), ns)
            else:
                value = eval(compiled, ns)
                if value is not None:
                    resp["value"] = repr(value)
    except BaseException as exc:
        resp = {
            "success": False,
            "value": "",
            "error_kind": type(exc).__name__,
            "error_detail": str(exc),
            "traceback": traceback.format_exc().splitlines(),
        }
    resp["stdout"] = out.getvalue()
    resp["stderr"] = err.getvalue()
    sys.stdout.write(json.dumps(resp) + "\n")
    sys.stdout.flush()
`

// PythonSession is a live Python subprocess executing cells in a shared
// namespace. It is not a full Jupyter kernel: environment directives
// (%, !, ? lines) are stripped before execution rather than interpreted.
type PythonSession struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	closed bool
}

type request struct {
	Op   string `json:"op,omitempty"`
	Code string `json:"code,omitempty"`
}

type response struct {
	Success     bool     `json:"success"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
	Value       string   `json:"value"`
	ErrorKind   string   `json:"error_kind"`
	ErrorDetail string   `json:"error_detail"`
	Traceback   []string `json:"traceback"`
	Names       []string `json:"names"`
}

// NewPythonSession starts the subprocess for interpreter (usually
// "python3").
func NewPythonSession(interpreter string) (*PythonSession, error) {
	cmd := exec.Command(interpreter, "-u", "-c", driver)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", interpreter, err)
	}

	return &PythonSession{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReaderSize(stdout, 1<<20),
	}, nil
}

// Execute runs source in the session namespace. On timeout the session
// is killed (its namespace is unrecoverable mid-statement) and a Result
// with ErrorKind "timeout" is returned. On context cancellation the
// session is killed and the context error is returned.
func (s *PythonSession) Execute(ctx context.Context, source string, timeout time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrSessionClosed
	}

	start := time.Now()
	resp, err := s.roundTrip(ctx, request{Code: stripDirectiveLines(source)}, timeout)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.kill()
			return Result{}, err
		}
		if errors.Is(err, errRoundTripTimeout) {
			s.kill()
			return Result{
				Success:     false,
				ErrorKind:   "timeout",
				ErrorDetail: fmt.Sprintf("execution exceeded %s", timeout),
				Duration:    elapsed,
			}, nil
		}
		s.kill()
		return Result{}, err
	}

	return Result{
		Success:     resp.Success,
		Stdout:      resp.Stdout,
		Stderr:      resp.Stderr,
		Value:       resp.Value,
		ErrorKind:   resp.ErrorKind,
		ErrorDetail: resp.ErrorDetail,
		Traceback:   resp.Traceback,
		Duration:    elapsed,
	}, nil
}

// Names lists the names currently bound in the session namespace.
func (s *PythonSession) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	resp, err := s.roundTrip(ctx, request{Op: "names"}, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// Close shuts the subprocess down.
func (s *PythonSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.stdin.Close()
	err := s.cmd.Wait()
	s.closed = true
	return err
}

var errRoundTripTimeout = errors.New("round trip timed out")

func (s *PythonSession) roundTrip(ctx context.Context, req request, timeout time.Duration) (response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return response{}, err
	}
	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		return response{}, fmt.Errorf("write to session: %w", err)
	}

	type readResult struct {
		line string
		err  error
	}
	lineCh := make(chan readResult, 1)
	go func() {
		line, err := s.reader.ReadString('\n')
		lineCh <- readResult{line: line, err: err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-timer:
		return response{}, errRoundTripTimeout
	case got := <-lineCh:
		if got.err != nil {
			return response{}, fmt.Errorf("read from session: %w", got.err)
		}
		var resp response
		if err := json.Unmarshal([]byte(got.line), &resp); err != nil {
			return response{}, fmt.Errorf("decode session response: %w", err)
		}
		return resp, nil
	}
}

func (s *PythonSession) kill() {
	if s.closed {
		return
	}
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	s.closed = true
}

func stripDirectiveLines(source string) string {
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "%") || strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "?") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
