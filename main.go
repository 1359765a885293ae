package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/hartkaymann/viewsheds-sub000/cmd"
	"github.com/hartkaymann/viewsheds-sub000/log"
)

var logger = log.New("viewsheds")

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "viewsheds"
	app.Usage = "resolve point cloud visibility by casting rays against a quadtree index"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "index",
			Usage: "build a spatial index over a geometry file",
			Description: `
Load vertices and faces from a wavefront obj file, sort the vertices along a
Morton curve, build a complete quadtree of the requested depth over them and
bin points and triangles into its leaves.

The flattened GPU-ready index can optionally be written to disk.`,
			ArgsUsage: "scene_file.obj",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "depth",
					Value: 5,
					Usage: "subdivision depth of the quadtree",
				},
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write the flattened index to this file",
				},
			},
			Action: cmd.BuildIndex,
		},
		{
			Name:  "cast",
			Usage: "cast a spherical ray sweep against an indexed scene",
			Description: `
Build the spatial index for the given geometry file, upload it to the selected
compute device and run the collision pipeline over a spherical sweep of rays.
Reports the number of points visible from the sweep origin.

Angles are given in degrees; theta sweeps the horizontal plane and phi the
polar axis.`,
			ArgsUsage: "scene_file.obj",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "depth",
					Value: 5,
					Usage: "subdivision depth of the quadtree",
				},
				cli.Float64Flag{
					Name:  "origin-x",
					Usage: "x coordinate of the ray origin",
				},
				cli.Float64Flag{
					Name:  "origin-y",
					Usage: "y coordinate of the ray origin",
				},
				cli.Float64Flag{
					Name:  "origin-z",
					Usage: "z coordinate of the ray origin",
				},
				cli.Float64Flag{
					Name:  "theta-min",
					Value: 0,
					Usage: "start of the horizontal sweep",
				},
				cli.Float64Flag{
					Name:  "theta-max",
					Value: 360,
					Usage: "end of the horizontal sweep",
				},
				cli.IntFlag{
					Name:  "rays-theta",
					Value: 256,
					Usage: "ray samples across the horizontal sweep",
				},
				cli.Float64Flag{
					Name:  "phi-min",
					Value: 0,
					Usage: "start of the polar sweep",
				},
				cli.Float64Flag{
					Name:  "phi-max",
					Value: 180,
					Usage: "end of the polar sweep",
				},
				cli.IntFlag{
					Name:  "rays-phi",
					Value: 128,
					Usage: "ray samples across the polar sweep",
				},
				cli.BoolFlag{
					Name:  "no-sort",
					Usage: "skip the candidate distance sort before resolution",
				},
				cli.StringFlag{
					Name:  "device, d",
					Value: "cpu",
					Usage: "compute device to cast on (cpu, gpu or all)",
				},
				cli.StringSliceFlag{
					Name:  "blacklist, b",
					Value: &cli.StringSlice{},
					Usage: "blacklist opencl devices whose names contain this value",
				},
				cli.StringFlag{
					Name:  "kernel-file",
					Value: "caster/device/opencl/CL/viewsheds.cl",
					Usage: "path to the opencl kernel source",
				},
			},
			Action: cmd.CastRays,
		},
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices",
			Action: cmd.ListDevices,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
