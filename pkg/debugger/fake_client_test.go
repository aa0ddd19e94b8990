package debugger

import (
	"github.com/go-delve/delve/service/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type fakeClient struct {
	pid       int
	state     *api.DebuggerState
	regs      api.Registers
	regCalls  int
	memory    map[uint64]byte
	memErr    error
	examines  []int
	halted    bool
	continued bool
	bps       []*api.Breakpoint
	functions map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pid:       4242,
		state:     &api.DebuggerState{CurrentThread: &api.Thread{ID: 7}},
		memory:    map[uint64]byte{},
		functions: map[string]bool{},
	}
}

func (c *fakeClient) GetState() (*api.DebuggerState, error) {
	return c.state, nil
}

func (c *fakeClient) Halt() (*api.DebuggerState, error) {
	c.halted = true
	c.state.Running = false
	return c.state, nil
}

func (c *fakeClient) Continue() <-chan *api.DebuggerState {
	c.continued = true
	ch := make(chan *api.DebuggerState, 1)
	ch <- c.state
	close(ch)
	return ch
}

func (c *fakeClient) CreateBreakpoint(bp *api.Breakpoint) (*api.Breakpoint, error) {
	if bp.FunctionName != "" && !c.functions[bp.FunctionName] {
		return nil, errors.Errorf("location %q not found: could not find function", bp.FunctionName)
	}
	created := *bp
	created.ID = len(c.bps) + 1
	c.bps = append(c.bps, &created)
	return &created, nil
}

func (c *fakeClient) ListFunctions(filter string, _ int) ([]string, error) {
	var names []string
	for name := range c.functions {
		names = append(names, name)
	}
	return names, nil
}

func (c *fakeClient) ListThreadRegisters(threadID int, _ bool) (api.Registers, error) {
	c.regCalls++
	if threadID != c.state.CurrentThread.ID {
		return nil, errors.Errorf("unknown thread %d", threadID)
	}
	return c.regs, nil
}

func (c *fakeClient) ExamineMemory(address uint64, length int) ([]byte, bool, error) {
	c.examines = append(c.examines, length)
	if length > maxExamineLength {
		return nil, false, errors.New("len must be less than or equal to 1000")
	}
	if c.memErr != nil {
		return nil, false, c.memErr
	}
	mem := make([]byte, 0, length)
	for i := range uint64(length) {
		b, exists := c.memory[address+i]
		if !exists {
			return nil, false, errors.Errorf("could not read memory at %#x", address+i)
		}
		mem = append(mem, b)
	}
	return mem, true, nil
}

func (c *fakeClient) ProcessPid() int {
	return c.pid
}

func (c *fakeClient) Disconnect(bool) error {
	return nil
}

func newTestDebugger(client *fakeClient, maps ...procMap) *DelveDebugger {
	d := newDelveDebugger(zap.NewNop(), client, "")
	d.listMaps = func(pid int) ([]procMap, error) {
		if pid != client.pid {
			return nil, errors.Errorf("unknown process %d", pid)
		}
		return maps, nil
	}
	return d
}
