// Package target_linux attaches to live processes through /proc and reads
// their memory with process_vm_readv.
package target_linux

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"memtap/target"
)

// ParseMaps parses /proc/<pid>/maps content into a region table sorted by
// base address. Malformed lines are skipped rather than failing the whole
// snapshot; the kernel occasionally emits entries the format does not cover.
func ParseMaps(r io.Reader) ([]target.Region, error) {
	var regions []target.Region

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		// Address range, e.g. "7f1234561000-7f1234567000"
		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || end < start {
			continue
		}

		// Pathname is everything after the inode column; file names may
		// contain spaces.
		var path string
		if len(fields) > 5 {
			path = strings.Join(fields[5:], " ")
		}

		regions = append(regions, target.Region{
			Base:  start,
			Size:  end - start,
			Perms: fields[1],
			Path:  path,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	target.SortRegions(regions)
	return regions, nil
}
