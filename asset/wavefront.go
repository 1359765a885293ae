// Package asset loads the external geometry the index builder consumes. Only
// the wavefront subset the pipeline needs is supported: vertex and face
// statements; materials, normals and texture coordinates are skipped.
package asset

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hartkaymann/viewsheds-sub000/scene"
	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Read a wavefront obj file and return its vertices as a point cloud plus
// its faces as triangles. Faces with more than three vertices are fan
// triangulated; negative face indices are resolved relative to the vertices
// parsed so far.
func ReadWavefront(path string) (*scene.PointCloud, []scene.Triangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("wavefront: could not open %s: %v", path, err)
	}
	defer f.Close()

	cloud := &scene.PointCloud{}
	var triangles []scene.Triangle

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 512*1024), 512*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, nil, fmt.Errorf("wavefront: %s:%d: vertex requires 3 coordinates", path, lineNum)
			}
			var coord [3]float32
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[i+1], 32)
				if err != nil {
					return nil, nil, fmt.Errorf("wavefront: %s:%d: could not parse coordinate %q", path, lineNum, fields[i+1])
				}
				coord[i] = float32(v)
			}
			cloud.Points = append(cloud.Points, types.XYZW(coord[0], coord[1], coord[2], 1))
			cloud.Classifications = append(cloud.Classifications, 0)
		case "f":
			if len(fields) < 4 {
				return nil, nil, fmt.Errorf("wavefront: %s:%d: face requires at least 3 vertices", path, lineNum)
			}
			indices := make([]uint32, len(fields)-1)
			for i, field := range fields[1:] {
				idx, err := parseFaceIndex(field, len(cloud.Points))
				if err != nil {
					return nil, nil, fmt.Errorf("wavefront: %s:%d: %v", path, lineNum, err)
				}
				indices[i] = idx
			}
			for i := 2; i < len(indices); i++ {
				triangles = append(triangles, scene.Triangle{indices[0], indices[i-1], indices[i]})
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("wavefront: error reading %s: %v", path, err)
	}

	if len(cloud.Points) == 0 {
		return nil, nil, fmt.Errorf("wavefront: %s contains no vertices", path)
	}

	return cloud, triangles, nil
}

// Parse a face vertex reference of the form v, v/vt, v//vn or v/vt/vn and
// return the zero-based vertex index.
func parseFaceIndex(field string, vertexCount int) (uint32, error) {
	if slash := strings.IndexByte(field, '/'); slash != -1 {
		field = field[:slash]
	}

	idx, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("could not parse face index %q", field)
	}

	switch {
	case idx > 0 && idx <= vertexCount:
		return uint32(idx - 1), nil
	case idx < 0 && -idx <= vertexCount:
		return uint32(vertexCount + idx), nil
	}
	return 0, fmt.Errorf("face index %d out of range (%d vertices)", idx, vertexCount)
}
