package workflow

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
)

// Target is one piece of a build.
type Target struct {
	Name  string           `json:"name"`
	Shape capability.Shape `json:"shape"`
	Color capability.Color `json:"color"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s (%s %s)", t.Name, t.Color, t.Shape)
}

// LoadTargets reads a targets file.
func LoadTargets(path string) ([]Target, error) {
	f, err := os.Open(path) //nolint:gosec // path from configuration or CLI
	if err != nil {
		return nil, fmt.Errorf("opening targets file: %w", err)
	}
	defer f.Close()
	return ParseTargets(f)
}

// ParseTargets reads targets in file order:
//
//	left_base:
//	  shape: Square
//	  color: Blue
//	right_base:
//	  shape: Circle
//	  color: Red
//
// Every target needs both a shape and a color. Names must be unique.
func ParseTargets(r io.Reader) ([]Target, error) {
	var targets []Target
	seen := map[string]bool{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, _ := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case strings.HasSuffix(line, ":") && key != "shape" && key != "color":
			if key == "" {
				return nil, fmt.Errorf("%w: line %d: empty target name", ErrInvalidTargets, lineNo)
			}
			if seen[key] {
				return nil, fmt.Errorf("%w: line %d: duplicate target %q", ErrInvalidTargets, lineNo, key)
			}
			seen[key] = true
			targets = append(targets, Target{Name: key})
		case len(targets) == 0:
			return nil, fmt.Errorf("%w: line %d: %q before any target name", ErrInvalidTargets, lineNo, line)
		case key == "shape":
			s, err := capability.ParseShape(value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidTargets, lineNo, err)
			}
			targets[len(targets)-1].Shape = s
		case key == "color":
			c, err := capability.ParseColor(value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidTargets, lineNo, err)
			}
			targets[len(targets)-1].Color = c
		default:
			return nil, fmt.Errorf("%w: line %d: unexpected %q", ErrInvalidTargets, lineNo, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading targets: %w", err)
	}

	for _, t := range targets {
		if t.Shape == "" || t.Color == "" {
			return nil, fmt.Errorf("%w: target %q needs both shape and color", ErrInvalidTargets, t.Name)
		}
	}
	return targets, nil
}
