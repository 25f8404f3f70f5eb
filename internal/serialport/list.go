package serialport

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"laserlink/internal/wire"
)

var listPatterns = []string{"ttyS*", "ttyUSB*", "ttyACM*", "pts/[0-9]*"}

// List enumerates candidate serial devices under /dev.
func List() ([]string, error) {
	return listIn("/dev")
}

func listIn(root string) ([]string, error) {
	var ports []string
	for _, pattern := range listPatterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, err
		}
		ports = append(ports, matches...)
	}
	SortNames(ports)
	return ports, nil
}

// SortNames orders port names: COM ports first, then by prefix, then by the
// numeric suffix (ttyUSB2 before ttyUSB10).
func SortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ci, cj := wire.IsCOMName(names[i]), wire.IsCOMName(names[j])
		if ci != cj {
			return ci
		}
		pi, ni := splitNumericSuffix(names[i])
		pj, nj := splitNumericSuffix(names[j])
		if !strings.EqualFold(pi, pj) {
			return strings.ToLower(pi) < strings.ToLower(pj)
		}
		return ni < nj
	})
}

func splitNumericSuffix(name string) (string, int) {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return name, -1
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return name, -1
	}
	return name[:start], n
}
