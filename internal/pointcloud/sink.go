package pointcloud

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/voxeldown/internal/fsutil"
	"github.com/banshee-data/voxeldown/internal/monitoring"
)

// Header is the first row of every written cloud.
var Header = []string{"x", "y", "z"}

// WriteCSV writes the header followed by one x,y,z row per point. Values
// use the shortest representation that parses back to the same float64.
func WriteCSV(w io.Writer, points []Point3) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	row := make([]string, 3)
	for _, p := range points {
		row[0] = formatCoord(p.X)
		row[1] = formatCoord(p.Y)
		row[2] = formatCoord(p.Z)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteFile writes points to path on fsys. The destination is replaced only
// once every row has been written; on error it is left untouched.
func WriteFile(fsys fsutil.FileSystem, path string, points []Point3) error {
	pf, err := fsys.CreateAtomic(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	defer pf.Discard()

	if err := WriteCSV(pf, points); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := pf.Commit(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, path, err)
	}
	monitoring.Logf("wrote %d points to %s", len(points), path)
	return nil
}
