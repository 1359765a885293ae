package cmd

import (
	"errors"
	"io/ioutil"

	"github.com/urfave/cli"

	"github.com/hartkaymann/viewsheds-sub000/asset"
	"github.com/hartkaymann/viewsheds-sub000/scene"
)

// Build a spatial index over the vertices of a wavefront file and display
// its statistics. The flattened index can optionally be written to disk.
func BuildIndex(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing geometry file argument")
	}

	tree, cloud, triangles, err := buildIndex(ctx.Args().First(), ctx.Int("depth"))
	if err != nil {
		return err
	}

	logger.Noticef(
		"indexed %d points and %d triangles\n%s",
		len(cloud.Points), len(triangles), tree.Stats(),
	)

	if out := ctx.String("out"); out != "" {
		err = ioutil.WriteFile(out, tree.Flatten(), 0644)
		if err != nil {
			return err
		}
		logger.Noticef("wrote flat index to %s", out)
	}

	return nil
}

// Load geometry, Morton-sort the vertices and build a fully assigned
// quadtree of the given depth over them.
func buildIndex(path string, depth int) (*scene.QuadTree, *scene.PointCloud, []scene.Triangle, error) {
	cloud, triangles, err := asset.ReadWavefront(path)
	if err != nil {
		return nil, nil, nil, err
	}

	bounds := cloud.Bounds()
	sorted, indices := scene.SortCloud(cloud, bounds)
	triangles = scene.RemapTriangles(triangles, indices)

	tree := scene.NewQuadTree(bounds, depth)
	tree.AssignPoints(sorted.Points)
	tree.AssignTriangles(triangles, sorted.Points)

	return tree, sorted, triangles, nil
}
