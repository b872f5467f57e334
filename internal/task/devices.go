package task

import (
	"strconv"
	"strings"
)

const cudaPrefix = "CUDA_VISIBLE_DEVICES="

// ParseDevices extracts the ordered, de-duplicated device list from the
// first CUDA_VISIBLE_DEVICES=<list> assignment found in command. The
// list is comma-separated non-negative integers; surrounding whitespace
// and a single matching pair of quotes around the whole list are
// tolerated. Returns nil if no assignment, or no valid integer, is
// found.
func ParseDevices(command string) []int {
	idx := strings.Index(command, cudaPrefix)
	if idx < 0 {
		return nil
	}
	rest := command[idx+len(cudaPrefix):]

	if len(rest) > 0 && (rest[0] == '"' || rest[0] == '\'') {
		quote := rest[0]
		if end := strings.IndexByte(rest[1:], quote); end >= 0 {
			rest = rest[1 : 1+end]
		} else {
			rest = rest[1:]
		}
	} else {
		// Bare value: ends at the first shell metacharacter or whitespace.
		end := strings.IndexAny(rest, " \t\n;&|")
		if end >= 0 {
			rest = rest[:end]
		}
	}

	parts := strings.Split(rest, ",")
	seen := make(map[int]bool, len(parts))
	devices := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil || d < 0 {
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		devices = append(devices, d)
	}
	if len(devices) == 0 {
		return nil
	}
	return devices
}
