package snapshot

import (
	"github.com/pkg/errors"
)

// RegisterSet holds the x86-64 general purpose and flags registers of a stopped thread.
type RegisterSet struct {
	RAX    uint64
	RBX    uint64
	RCX    uint64
	RDX    uint64
	RSP    uint64
	RBP    uint64
	RSI    uint64
	RDI    uint64
	RIP    uint64
	R8     uint64
	R9     uint64
	R10    uint64
	R11    uint64
	R12    uint64
	R13    uint64
	R14    uint64
	R15    uint64
	RFLAGS uint64
}

type registerField struct {
	name  string
	field func(r *RegisterSet) *uint64
}

var registerFields = [...]registerField{
	{"rax", func(r *RegisterSet) *uint64 { return &r.RAX }},
	{"rbx", func(r *RegisterSet) *uint64 { return &r.RBX }},
	{"rcx", func(r *RegisterSet) *uint64 { return &r.RCX }},
	{"rdx", func(r *RegisterSet) *uint64 { return &r.RDX }},
	{"rsp", func(r *RegisterSet) *uint64 { return &r.RSP }},
	{"rbp", func(r *RegisterSet) *uint64 { return &r.RBP }},
	{"rsi", func(r *RegisterSet) *uint64 { return &r.RSI }},
	{"rdi", func(r *RegisterSet) *uint64 { return &r.RDI }},
	{"rip", func(r *RegisterSet) *uint64 { return &r.RIP }},
	{"r8", func(r *RegisterSet) *uint64 { return &r.R8 }},
	{"r9", func(r *RegisterSet) *uint64 { return &r.R9 }},
	{"r10", func(r *RegisterSet) *uint64 { return &r.R10 }},
	{"r11", func(r *RegisterSet) *uint64 { return &r.R11 }},
	{"r12", func(r *RegisterSet) *uint64 { return &r.R12 }},
	{"r13", func(r *RegisterSet) *uint64 { return &r.R13 }},
	{"r14", func(r *RegisterSet) *uint64 { return &r.R14 }},
	{"r15", func(r *RegisterSet) *uint64 { return &r.R15 }},
	{"rflags", func(r *RegisterSet) *uint64 { return &r.RFLAGS }},
}

// RegisterNames lists the captured registers in capture order.
var RegisterNames = func() []string {
	names := make([]string, 0, len(registerFields))
	for _, f := range registerFields {
		names = append(names, f.name)
	}
	return names
}()

// CaptureRegisters reads every register from r. The first failing register aborts the capture.
func CaptureRegisters(r RegisterReader) (RegisterSet, error) {
	var regs RegisterSet
	for _, f := range registerFields {
		v, err := r.ReadRegister(f.name)
		if err != nil {
			return RegisterSet{}, errors.Wrapf(err, "reading register %s failed", f.name)
		}
		*f.field(&regs) = v
	}
	return regs, nil
}

// NewRegisterSet builds a register set from named values. Every register must be present and
// no other name is accepted.
func NewRegisterSet(values map[string]uint64) (RegisterSet, error) {
	var regs RegisterSet
	for _, f := range registerFields {
		v, exists := values[f.name]
		if !exists {
			return RegisterSet{}, errors.Wrapf(ErrMissingRegister, "register %s", f.name)
		}
		*f.field(&regs) = v
	}
	if len(values) != len(registerFields) {
		for name := range values {
			if _, exists := registerIndex[name]; !exists {
				return RegisterSet{}, errors.Wrapf(ErrUnknownRegister, "register %s", name)
			}
		}
	}
	return regs, nil
}

var registerIndex = func() map[string]int {
	index := make(map[string]int, len(registerFields))
	for i, f := range registerFields {
		index[f.name] = i
	}
	return index
}()

// Get returns the value of the named register.
func (r RegisterSet) Get(name string) (uint64, bool) {
	i, exists := registerIndex[name]
	if !exists {
		return 0, false
	}
	return *registerFields[i].field(&r), true
}

// Map returns the registers keyed by name.
func (r RegisterSet) Map() map[string]uint64 {
	values := make(map[string]uint64, len(registerFields))
	for _, f := range registerFields {
		values[f.name] = *f.field(&r)
	}
	return values
}
