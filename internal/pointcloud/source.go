package pointcloud

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/voxeldown/internal/fsutil"
	"github.com/banshee-data/voxeldown/internal/monitoring"
)

// ReadCSV parses a cloud of x,y,z rows. The first line is a header and is
// discarded unread. Every later non-blank line must hold exactly three
// finite numbers and yields exactly one point.
func ReadCSV(r io.Reader) ([]Point3, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	// Line numbers reported by cr are relative to the first data line.
	const headerLines = 1
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var points []Point3
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return points, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &FormatError{Line: perr.StartLine + headerLines, Err: perr.Err}
			}
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		line, _ := cr.FieldPos(0)
		line += headerLines
		text := strings.Join(rec, ",")
		if strings.ContainsAny(text, "\r\n") {
			return nil, &FormatError{Line: line, Text: text, Err: errors.New("row spans more than one line")}
		}
		p, err := parseRow(rec)
		if err != nil {
			return nil, &FormatError{Line: line, Text: text, Err: err}
		}
		points = append(points, p)
	}
}

func parseRow(rec []string) (Point3, error) {
	if len(rec) != 3 {
		return Point3{}, fmt.Errorf("expected 3 fields, got %d", len(rec))
	}
	var v [3]float64
	for i, field := range rec {
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Point3{}, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Point3{}, fmt.Errorf("non-finite coordinate %q", field)
		}
		v[i] = f
	}
	return Point3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// ReadFile opens path on fsys and parses it with ReadCSV. The file is
// closed on every return path.
func ReadFile(fsys fsutil.FileSystem, path string) ([]Point3, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer f.Close()

	points, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("read %d points from %s", len(points), path)
	return points, nil
}
