// Package snapshottest provides an in-memory process for capture tests.
package snapshottest

import (
	"context"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
)

// NewContext returns a context carrying a logger, as Capture expects.
func NewContext() context.Context {
	return logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
}

// Mapping is one region of a fake process.
type Mapping struct {
	snapshot.MemoryMap
	Data []byte

	// Vanished makes reads fail with snapshot.ErrRegionUnreadable.
	Vanished bool
	// ReadErr makes reads fail with the given error.
	ReadErr error
}

// Inspector is a stopped fake process.
type Inspector struct {
	Registers map[string]uint64
	Mappings  []Mapping
	MapsErr   error

	// Reads counts ReadMemory calls.
	Reads int
}

// NewInspector returns a process with every register set to zero.
func NewInspector(mappings ...Mapping) *Inspector {
	regs := make(map[string]uint64, len(snapshot.RegisterNames))
	for _, name := range snapshot.RegisterNames {
		regs[name] = 0
	}
	return &Inspector{
		Registers: regs,
		Mappings:  mappings,
	}
}

// Readable returns a readable, writable mapping holding data at start.
func Readable(start uint64, hint string, data []byte) Mapping {
	return Mapping{
		MemoryMap: snapshot.MemoryMap{
			Start:    start,
			End:      start + uint64(len(data)),
			Readable: true,
			Writable: true,
			Hint:     hint,
		},
		Data: data,
	}
}

// MemoryMaps implements snapshot.MapLister.
func (i *Inspector) MemoryMaps() ([]snapshot.MemoryMap, error) {
	if i.MapsErr != nil {
		return nil, i.MapsErr
	}
	maps := make([]snapshot.MemoryMap, 0, len(i.Mappings))
	for _, m := range i.Mappings {
		maps = append(maps, m.MemoryMap)
	}
	return maps, nil
}

// ReadMemory implements snapshot.MemoryReader.
func (i *Inspector) ReadMemory(start, end uint64) ([]byte, error) {
	i.Reads++
	for _, m := range i.Mappings {
		if m.Start != start || m.End != end {
			continue
		}
		switch {
		case m.ReadErr != nil:
			return nil, m.ReadErr
		case m.Vanished || !m.Readable:
			return nil, errors.Wrapf(snapshot.ErrRegionUnreadable, "[%#x,%#x)", start, end)
		}
		return append([]byte(nil), m.Data...), nil
	}
	return nil, errors.Errorf("no mapping at [%#x,%#x)", start, end)
}

// ReadRegister implements snapshot.RegisterReader.
func (i *Inspector) ReadRegister(name string) (uint64, error) {
	v, exists := i.Registers[name]
	if !exists {
		return 0, errors.Errorf("register %s is not available", name)
	}
	return v, nil
}
