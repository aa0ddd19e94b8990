package debugger

import (
	"strconv"
	"strings"

	"github.com/go-delve/delve/service/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
)

// maxExamineLength is the largest read delve's ExamineMemory serves in one call.
const maxExamineLength = 1000

var _ snapshot.Inspector = (*DelveDebugger)(nil)

// procMap is one line of /proc/<pid>/maps.
type procMap struct {
	start, end uint64
	read       bool
	write      bool
	execute    bool
	pathname   string
}

func (m procMap) memoryMap() snapshot.MemoryMap {
	return snapshot.MemoryMap{
		Start:      m.start,
		End:        m.end,
		Readable:   m.read,
		Writable:   m.write,
		Executable: m.execute,
		Hint:       m.pathname,
	}
}

// MemoryMaps lists the mappings of the debuggee in address order.
func (d *DelveDebugger) MemoryMaps() ([]snapshot.MemoryMap, error) {
	pid := d.client.ProcessPid()
	maps, err := d.listMaps(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "reading memory maps of process %d failed", pid)
	}
	result := make([]snapshot.MemoryMap, 0, len(maps))
	for _, m := range maps {
		result = append(result, m.memoryMap())
	}
	return result, nil
}

// ReadMemory reads [start,end) from the debuggee. If delve fails and the range is no longer
// mapped readable, the error wraps snapshot.ErrRegionUnreadable.
func (d *DelveDebugger) ReadMemory(start, end uint64) ([]byte, error) {
	if end < start {
		return nil, errors.Errorf("invalid memory range [%#x,%#x)", start, end)
	}
	data := make([]byte, 0, end-start)
	for addr := start; addr < end; {
		length := int(min(end-addr, maxExamineLength))
		mem, _, err := d.client.ExamineMemory(addr, length)
		if err == nil && len(mem) != length {
			err = errors.Errorf("short read of %d bytes", len(mem))
		}
		if err != nil {
			return nil, d.readError(start, end, addr, err)
		}
		data = append(data, mem...)
		addr += uint64(length)
	}
	return data, nil
}

func (d *DelveDebugger) readError(start, end, addr uint64, err error) error {
	err = errors.Wrapf(err, "examining memory at %#x failed", addr)

	maps, mapsErr := d.MemoryMaps()
	if mapsErr != nil {
		d.log.Warn("Re-reading memory maps failed", zap.Error(mapsErr))
		return err
	}
	for _, m := range maps {
		if m.Start <= start && m.End >= end && m.Readable {
			return err
		}
	}
	return errors.Wrapf(snapshot.ErrRegionUnreadable, "[%#x,%#x) is no longer mapped readable: %s", start, end, err)
}

// ReadRegister reads a register of the current thread. rflags is served by the native flags
// register, whichever of Rflags or Eflags delve reports. The register list is fetched once and
// reused until the target is halted or continued.
func (d *DelveDebugger) ReadRegister(name string) (uint64, error) {
	if d.regs == nil {
		regs, err := d.threadRegisters()
		if err != nil {
			return 0, err
		}
		d.regs = regs
	}
	return registerValue(d.regs, name)
}

func (d *DelveDebugger) threadRegisters() (api.Registers, error) {
	state, err := d.client.GetState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get state")
	}
	if state.CurrentThread == nil {
		return nil, errors.New("no current thread available")
	}

	regs, err := d.client.ListThreadRegisters(state.CurrentThread.ID, false)
	if err != nil {
		return nil, errors.Wrapf(err, "listing registers of thread %d failed", state.CurrentThread.ID)
	}
	if regs == nil {
		regs = api.Registers{}
	}
	return regs, nil
}

func registerValue(regs api.Registers, name string) (uint64, error) {
	aliases := []string{name}
	if name == "rflags" {
		aliases = append(aliases, "eflags")
	}
	for _, alias := range aliases {
		for _, reg := range regs {
			if strings.EqualFold(reg.Name, alias) {
				return parseRegisterValue(reg)
			}
		}
	}
	return 0, errors.Wrapf(snapshot.ErrMissingRegister, "register %s not reported by delve", name)
}

// parseRegisterValue parses the leading hex number of a delve register value, which may be
// followed by a decoded view such as "[PF ZF IF]".
func parseRegisterValue(reg api.Register) (uint64, error) {
	fields := strings.Fields(reg.Value)
	if len(fields) == 0 {
		return 0, errors.Errorf("register %s has no value", reg.Name)
	}
	v, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "register %s has invalid value %q", reg.Name, reg.Value)
	}
	return v, nil
}
