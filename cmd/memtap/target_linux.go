//go:build linux

package main

import (
	"memtap/target"
	"memtap/target_linux"
)

func newHost() (target.Host, error) {
	return target_linux.NewHost(), nil
}

func findByName(name string) (target.PID, error) {
	proc, err := target_linux.OneByName(name)
	if err != nil {
		return 0, err
	}
	return proc.PID, nil
}

func listProcesses(name string) ([]procInfo, error) {
	procs, err := target_linux.ListByName(name)
	if err != nil {
		return nil, err
	}
	out := make([]procInfo, 0, len(procs))
	for _, p := range procs {
		// A pid can vanish between the listing and the status read; drop it
		// rather than showing a half-empty row.
		st, err := target_linux.ReadStatus(p.PID)
		if err != nil {
			continue
		}
		out = append(out, procInfo{
			PID:     p.PID,
			Name:    p.Name,
			State:   st.State,
			Threads: st.Threads,
			RSS:     st.VmRSS,
			Cmdline: st.Cmdline,
		})
	}
	return out, nil
}
