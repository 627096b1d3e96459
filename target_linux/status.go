package target_linux

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"memtap/target"
)

// Status describes one live process the way /proc reports it. Memory
// figures are kibibytes, matching the kernel's units.
type Status struct {
	PID     target.PID
	PPID    target.PID
	Name    string
	State   string
	Threads int
	VmSize  int64
	VmRSS   int64
	Cmdline string
}

// parseStat fills the fields backed by /proc/<pid>/stat. The comm field is
// parenthesized and may itself contain spaces or parens, so the numeric
// tail starts after the last ')'.
func parseStat(data string, st *Status) error {
	start := strings.IndexByte(data, '(')
	end := strings.LastIndexByte(data, ')')
	if start < 0 || end < start {
		return fmt.Errorf("malformed stat line")
	}
	st.Name = data[start+1 : end]

	// After the comm field: state, ppid, ... with num_threads 18 fields in.
	fields := strings.Fields(data[end+1:])
	if len(fields) < 18 {
		return fmt.Errorf("truncated stat line")
	}
	st.State = fields[0]
	if ppid, err := strconv.Atoi(fields[1]); err == nil {
		st.PPID = target.PID(ppid)
	}
	if threads, err := strconv.Atoi(fields[17]); err == nil {
		st.Threads = threads
	}
	return nil
}

// parseStatusMeta scans /proc/<pid>/status for the memory lines stat does
// not carry. Lines that fail to parse keep their zero value.
func parseStatusMeta(data string, st *Status) {
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "VmSize:":
			if v, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				st.VmSize = v
			}
		case "VmRSS:":
			if v, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				st.VmRSS = v
			}
		}
	}
}
