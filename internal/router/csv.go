package router

import (
	"strconv"
	"strings"
)

// EncodePathCSV renders a path as comma-separated decimal addresses
// (spec.md §3: the 'S' payload is "comma-separated addresses"). Exported
// so internal/tasks can build the same wire format for the command
// center's periodic root announce.
func EncodePathCSV(path []byte) []byte {
	if len(path) == 0 {
		return nil
	}
	parts := make([]string, len(path))
	for i, b := range path {
		parts[i] = strconv.Itoa(int(b))
	}
	return []byte(strings.Join(parts, ","))
}

// DecodePathCSV reverses EncodePathCSV.
func DecodePathCSV(payload []byte) ([]byte, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return nil, errBadPath
		}
		out = append(out, byte(n))
	}
	return out, nil
}
