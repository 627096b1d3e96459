//go:build linux

package target_linux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"memtap/target"
)

// Process is one finder result: a live pid and its best-effort name taken
// from comm or the exe symlink.
type Process struct {
	PID  target.PID
	Name string
}

// ListByName returns all processes whose comm or exe basename equals name.
// The match is case-sensitive, like pidof.
func ListByName(name string) ([]Process, error) {
	if name == "" {
		return nil, errors.New("empty process name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	selfPID := os.Getpid()
	var out []Process

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		if pid == selfPID {
			continue
		}

		comm, _ := os.ReadFile(filepath.Join("/proc", e.Name(), "comm"))
		comm = bytes.TrimSpace(comm)
		if string(comm) == name {
			out = append(out, Process{PID: target.PID(pid), Name: string(comm)})
			continue
		}

		// The exe symlink may be unreadable for zombies or across
		// privilege boundaries; comm already failed to match, so a miss
		// here just skips the entry.
		exe, _ := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))
		if exe != "" && filepath.Base(exe) == name {
			out = append(out, Process{PID: target.PID(pid), Name: filepath.Base(exe)})
		}
	}

	return out, nil
}

// ReadStatus reports the /proc bookkeeping for one process. Files the
// kernel declines to expose leave their fields zero; only a vanished pid or
// an unparseable stat line is an error.
func ReadStatus(pid target.PID) (Status, error) {
	st := Status{PID: pid}
	dir := filepath.Join("/proc", strconv.Itoa(int(pid)))

	data, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		if os.IsNotExist(err) {
			return st, fmt.Errorf("status pid %d: %w", pid, target.ErrUnknownProcess)
		}
		return st, fmt.Errorf("status pid %d: %w", pid, err)
	}
	if err := parseStat(string(data), &st); err != nil {
		return st, fmt.Errorf("status pid %d: %w", pid, err)
	}

	if data, err := os.ReadFile(filepath.Join(dir, "status")); err == nil {
		parseStatusMeta(string(data), &st)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil {
		st.Cmdline = strings.TrimSpace(strings.ReplaceAll(string(data), "\x00", " "))
	}

	return st, nil
}

// OneByName returns the lowest-pid match for name, or ErrUnknownProcess if
// nothing matches.
func OneByName(name string) (Process, error) {
	ps, err := ListByName(name)
	if err != nil {
		return Process{}, err
	}
	if len(ps) == 0 {
		return Process{}, fmt.Errorf("no process named %q: %w", name, target.ErrUnknownProcess)
	}

	best := ps[0]
	for _, p := range ps[1:] {
		if p.PID < best.PID {
			best = p
		}
	}
	return best, nil
}
