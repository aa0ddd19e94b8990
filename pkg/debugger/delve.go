package debugger

import (
	"context"
	"net"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// startupTimeout bounds how long a launched dlv server may take to accept connections.
const startupTimeout = 10 * time.Second

// rpcClient is the part of the delve RPC client the debugger drives.
type rpcClient interface {
	GetState() (*api.DebuggerState, error)
	Halt() (*api.DebuggerState, error)
	Continue() <-chan *api.DebuggerState
	CreateBreakpoint(bp *api.Breakpoint) (*api.Breakpoint, error)
	ListFunctions(filter string, followCalls int) ([]string, error)
	ListThreadRegisters(threadID int, includeFp bool) (api.Registers, error)
	ExamineMemory(address uint64, length int) ([]byte, bool, error)
	ProcessPid() int
	Disconnect(cont bool) error
}

// DelveDebugger wraps a Delve RPC client session and exposes the stopped target to captures.
type DelveDebugger struct {
	log       *zap.Logger
	client    rpcClient
	target    string    // Target binary path, empty when attached to a running server
	dlvCmd    *exec.Cmd // The running 'dlv exec' command, nil when attached
	dlvListen string    // The address dlv is listening on (e.g., "localhost:12345")
	listMaps  func(pid int) ([]procMap, error)

	// regs caches the registers of the current thread until the target runs again.
	regs api.Registers
}

func newDelveDebugger(log *zap.Logger, client rpcClient, listen string) *DelveDebugger {
	return &DelveDebugger{
		log:       log,
		client:    client,
		dlvListen: listen,
		listMaps:  readProcMaps,
	}
}

// findFreePort finds an available TCP port on localhost
func findFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, errors.WithStack(err)
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// dial connects to a delve server and checks that it answers.
func dial(addr string) (*rpc2.RPCClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to delve server at %s failed", addr)
	}
	client := rpc2.NewClientFromConn(conn)
	if _, err := client.GetState(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "delve server at %s did not respond", addr)
	}
	return client, nil
}

// checkLocalAddr rejects delve servers on other hosts. Memory maps are read from /proc of
// this host, so the debuggee must run here too.
func checkLocalAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.Wrapf(err, "invalid delve server address %q", addr)
	}
	if host == "" || strings.EqualFold(host, "localhost") {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return errors.Errorf("delve server %s is not local, only servers on this host can be captured", addr)
}

// Connect attaches to a headless Delve server started with --api-version=2 on this host.
func Connect(ctx context.Context, addr string) (*DelveDebugger, error) {
	log := logger.Get(ctx)

	if err := checkLocalAddr(addr); err != nil {
		return nil, err
	}
	client, err := dial(addr)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to Delve headless server", zap.String("addr", addr), zap.Int("pid", client.ProcessPid()))

	return newDelveDebugger(log, client, addr), nil
}

// NewDelveDebuggerWithArgs launches a Delve headless server for the target with the given
// command line arguments and connects to it. The target stays stopped at its entry point.
func NewDelveDebuggerWithArgs(ctx context.Context, targetPath string, args []string) (*DelveDebugger, error) {
	log := logger.Get(ctx)

	absPath, err := filepath.Abs(targetPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get absolute path for target %s", targetPath)
	}

	port, err := findFreePort()
	if err != nil {
		return nil, errors.Wrap(err, "failed to find free port for delve")
	}
	dlvListenAddr := "localhost:" + strconv.Itoa(port)

	cmdArgs := []string{
		"exec", absPath,
		"--headless",
		"--listen=" + dlvListenAddr,
		"--api-version=2",
		"--accept-multiclient",
	}

	// Only add the '--' separator if we have args to pass
	if len(args) > 0 {
		cmdArgs = append(cmdArgs, "--")
		cmdArgs = append(cmdArgs, args...)
	}

	dlvCmd := exec.Command("dlv", cmdArgs...)
	setupProcAttr(dlvCmd)

	if err := dlvCmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start delve process")
	}
	log.Info("Started Delve headless server",
		zap.String("target", absPath), zap.String("addr", dlvListenAddr), zap.Int("dlvPid", dlvCmd.Process.Pid),
		zap.Strings("args", args))

	client, err := dialWithRetry(dlvListenAddr, startupTimeout)
	if err != nil {
		_ = dlvCmd.Process.Kill()
		_, _ = dlvCmd.Process.Wait() // Wait to clean up zombie process
		return nil, err
	}
	log.Info("Connected to Delve headless server", zap.String("addr", dlvListenAddr),
		zap.Int("pid", client.ProcessPid()))

	d := newDelveDebugger(log, client, dlvListenAddr)
	d.target = absPath
	d.dlvCmd = dlvCmd
	return d, nil
}

// NewDelveDebugger launches a Delve headless server for the target and connects via RPC
func NewDelveDebugger(ctx context.Context, targetPath string) (*DelveDebugger, error) {
	return NewDelveDebuggerWithArgs(ctx, targetPath, nil)
}

func dialWithRetry(addr string, timeout time.Duration) (*rpc2.RPCClient, error) {
	deadline := time.Now().Add(timeout)
	for {
		client, err := dial(addr)
		if err == nil {
			return client, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Pid returns the process ID of the debuggee.
func (d *DelveDebugger) Pid() int {
	return d.client.ProcessPid()
}

// Halt stops the target if it is running.
func (d *DelveDebugger) Halt() error {
	state, err := d.client.GetState()
	if err != nil {
		return errors.Wrap(err, "failed to get state")
	}
	if !state.Running {
		return nil
	}
	d.regs = nil
	if _, err := d.client.Halt(); err != nil {
		return errors.Wrap(err, "halt command failed")
	}
	return nil
}

// Continue resumes execution until the next breakpoint using RPC
func (d *DelveDebugger) Continue() (*api.DebuggerState, error) {
	d.regs = nil
	state := <-d.client.Continue()
	if state == nil {
		return nil, errors.New("continue command returned no state")
	}
	if state.Err != nil {
		return nil, errors.WithStack(state.Err)
	}
	if state.Exited {
		return nil, errors.Errorf("target exited with status %d", state.ExitStatus)
	}
	return state, nil
}

// Close terminates the connection and the Delve process the debugger launched.
func (d *DelveDebugger) Close() error {
	var closeErr error
	if d.client != nil {
		// A launched server is killed below, an attached one keeps its target stopped.
		if err := d.client.Disconnect(false); err != nil {
			d.log.Warn("Error disconnecting Delve client", zap.Error(err))
			closeErr = errors.Wrap(err, "failed to disconnect delve client")
		}
		d.client = nil
	}
	if d.dlvCmd != nil && d.dlvCmd.Process != nil {
		pid := d.dlvCmd.Process.Pid
		d.log.Debug("Terminating Delve process", zap.Int("dlvPid", pid))
		if err := d.dlvCmd.Process.Kill(); err != nil {
			// If already exited, it's not an error we need to report upwards usually.
			if err.Error() != "os: process already finished" {
				d.log.Warn("Error killing Delve process", zap.Int("dlvPid", pid), zap.Error(err))
				closeErr = errors.Wrap(err, "failed to kill delve process")
			}
		}
		// Wait for the process to release resources
		_, waitErr := d.dlvCmd.Process.Wait()
		if waitErr != nil && waitErr.Error() != "os: process already finished" && !isWaitAlreadyExited(waitErr) {
			d.log.Warn("Error waiting for Delve process", zap.Int("dlvPid", pid), zap.Error(waitErr))
			if closeErr == nil {
				closeErr = errors.Wrap(waitErr, "failed to wait for delve process")
			}
		}
		d.log.Debug("Delve process terminated", zap.Int("dlvPid", pid))
		d.dlvCmd = nil
	}
	return closeErr
}

// Helper to check for specific Wait error on Windows
func isWaitAlreadyExited(err error) bool {
	var e *exec.ExitError
	if errors.As(err, &e) {
		if status, ok := e.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus() == -1
		}
	}
	return false
}
