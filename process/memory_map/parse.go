package memory_map

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ParseMaps parses the /proc/[pid]/maps text format, e.g.
//
//	00400000-0040b000 r-xp 00000000 08:01 1234   /usr/bin/cat
func ParseMaps(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}

		startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}

		endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || endAddr < startAddr {
			continue
		}

		item := MemoryMapItem{
			Address: startAddr,
			Size:    uint(endAddr - startAddr),
			Perms:   fields[1],
		}

		if len(fields) > 2 {
			if off, err := strconv.ParseUint(fields[2], 16, 64); err == nil {
				item.Offset = off
			}
		}

		// paths may contain spaces, everything after the inode is the path
		if len(fields) > 5 {
			item.Path = strings.Join(fields[5:], " ")
		}

		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	Sort(memoryMap)
	return memoryMap, nil
}
