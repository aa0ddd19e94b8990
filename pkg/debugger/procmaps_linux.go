//go:build linux
// +build linux

package debugger

import (
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

func readProcMaps(pid int) ([]procMap, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	entries, err := proc.ProcMaps()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	maps := make([]procMap, 0, len(entries))
	for _, e := range entries {
		m := procMap{
			start:    uint64(e.StartAddr),
			end:      uint64(e.EndAddr),
			pathname: e.Pathname,
		}
		if e.Perms != nil {
			m.read = e.Perms.Read
			m.write = e.Perms.Write
			m.execute = e.Perms.Execute
		}
		maps = append(maps, m)
	}
	return maps, nil
}
