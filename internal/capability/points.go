package capability

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Well-known calibration point names.
const (
	PointObserve       = "observe_point"
	PointReload        = "reload_point"
	PointSafePick      = "safe_pickpoint"
	PointPick          = "pickpoint"
	PointConveyorStart = "conveyor_starting_point"
	PointBuild         = "build_point"
	PointArches        = "arches_point"
)

// Points are named calibration values in file order per name.
type Points map[string][]float64

// LoadPoints reads a calibration points file.
func LoadPoints(path string) (Points, error) {
	f, err := os.Open(path) //nolint:gosec // path from configuration
	if err != nil {
		return nil, fmt.Errorf("opening points file: %w", err)
	}
	defer f.Close()
	return ParsePoints(f)
}

// ParsePoints parses the calibration format:
//
//	observe_point: x = 0.031, y = 0.275, z = -0.358
//	roll = -0.034, pitch = -1.732, yaw = 0.008
//	pickpoint: [x=0.1, y=0.2, ...]
//
// A line containing ':' starts a new point; other non-blank lines continue
// the most recent one. Brackets are ignored. A name given twice keeps the
// later values.
func ParsePoints(r io.Reader) (Points, error) {
	points := Points{}
	current := ""
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if name, rest, ok := strings.Cut(line, ":"); ok {
			current = strings.TrimSpace(name)
			if current == "" {
				return nil, fmt.Errorf("%w: line %d: empty point name", ErrInvalidPoints, lineNo)
			}
			points[current] = nil
			line = rest
		} else if current == "" {
			return nil, fmt.Errorf("%w: line %d: values before any point name", ErrInvalidPoints, lineNo)
		}

		values, err := parseAxisValues(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidPoints, lineNo, err)
		}
		points[current] = append(points[current], values...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading points: %w", err)
	}
	return points, nil
}

func parseAxisValues(s string) ([]float64, error) {
	s = strings.NewReplacer("[", "", "]", "").Replace(s)
	var out []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		_, raw, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("value %q is not axis=value", field)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", field, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Pose returns the named point as a pose.
func (p Points) Pose(name string) (Pose, error) {
	v, ok := p[name]
	if !ok {
		return Pose{}, fmt.Errorf("%w: %s", ErrMissingPoint, name)
	}
	pose, err := PoseFromValues(v)
	if err != nil {
		return Pose{}, fmt.Errorf("point %s: %w", name, err)
	}
	return pose, nil
}

// Poses returns a point holding several poses back to back, such as
// arches_point.
func (p Points) Poses(name string) ([]Pose, error) {
	v, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingPoint, name)
	}
	if len(v) == 0 || len(v)%PoseSize != 0 {
		return nil, fmt.Errorf("%w: point %s has %d values, want a multiple of %d",
			ErrInvalidPoints, name, len(v), PoseSize)
	}
	poses := make([]Pose, 0, len(v)/PoseSize)
	for i := 0; i < len(v); i += PoseSize {
		pose, _ := PoseFromValues(v[i : i+PoseSize])
		poses = append(poses, pose)
	}
	return poses, nil
}
