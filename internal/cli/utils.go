package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pborman/uuid"
)

// Read splits r into whitespace trimmed lines, dropping blank ones
func Read(r io.Reader) []string {
	args := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			args = append(args, line)
		}
	}
	return args
}

// Args returns args, or the lines of stdin when the only arg is "-"
func Args(args []string, stdin io.Reader) []string {
	if len(args) == 1 && args[0] == "-" {
		return Read(stdin)
	}
	return args
}

// CheckID checks whether a string is a valid id
func CheckID(id string) error {
	if uuid.Parse(id) == nil {
		return fmt.Errorf("invalid id: %q", id)
	}
	return nil
}

// ParseSpec checks whether a json string parses as an object
func ParseSpec(spec string) (JMap, error) {
	j := JMap{}
	if err := json.Unmarshal([]byte(spec), &j); err != nil {
		return nil, fmt.Errorf("invalid spec %q: %w", spec, err)
	}
	return j, nil
}
