package scene

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/hartkaymann/viewsheds-sub000/types"
	"github.com/olekukonko/tablewriter"
)

// A triangle referencing three vertices in the point list.
type Triangle [3]uint32

// A loaded point cloud. Positions are stored as Vec4 (xyz + homogeneous w)
// so they can be uploaded to the device without repacking. The cloud is
// immutable after load; resampling replaces the whole dataset.
type PointCloud struct {
	Points []types.Vec4

	// Optional per-point classification codes, parallel to Points.
	Classifications []uint8
}

// Calculate the bounding box of the cloud.
func (pc *PointCloud) Bounds() types.AABB {
	if len(pc.Points) == 0 {
		return types.AABB{}
	}

	min := types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	max := types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, p := range pc.Points {
		min = types.MinVec3(min, p.Vec3())
		max = types.MaxVec3(max, p.Vec3())
	}

	return types.AABB{Pos: min, Size: max.Sub(min)}
}

// Build a tabular representation of index statistics.
func (t *QuadTree) Stats() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Index", "Value", "Size"})
	table.Append([]string{"Depth", fmt.Sprintf("%d", t.Depth), ""})
	table.Append([]string{"Nodes", fmt.Sprintf("%d", len(t.Nodes)), fmtSize(t.Nodes)})
	table.Append([]string{"Leaves", fmt.Sprintf("%d", TreeLeafCount(t.Depth)), ""})
	table.Append([]string{"Triangle refs", fmt.Sprintf("%d", len(t.TriangleIndex)), fmtSize(t.TriangleIndex)})
	table.Append([]string{"Flat buffer", fmt.Sprintf("%d nodes", len(t.Nodes)), fmtSize(t.Flatten())})
	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return strings.TrimLeft(fmt.Sprintf("%5.1f mb", totalBytes/1e6), " ")
}
