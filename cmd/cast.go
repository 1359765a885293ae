package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/hartkaymann/viewsheds-sub000/caster"
	"github.com/hartkaymann/viewsheds-sub000/caster/device"
	"github.com/hartkaymann/viewsheds-sub000/caster/device/cpu"
	"github.com/hartkaymann/viewsheds-sub000/caster/device/opencl"
	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Cast a spherical sweep of rays against an indexed scene and report which
// points are visible from the chosen origin.
func CastRays(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing geometry file argument")
	}

	depth := ctx.Int("depth")
	tree, cloud, triangles, err := buildIndex(ctx.Args().First(), depth)
	if err != nil {
		return err
	}

	dev, err := selectDevice(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()
	logger.Noticef("casting on %s device %q", dev.Type(), dev.Name())

	cfg := caster.Config{
		Origin: types.XYZ(
			float32(ctx.Float64("origin-x")),
			float32(ctx.Float64("origin-y")),
			float32(ctx.Float64("origin-z")),
		),
		ThetaMin:       radians(ctx.Float64("theta-min")),
		ThetaMax:       radians(ctx.Float64("theta-max")),
		RaysTheta:      uint32(ctx.Int("rays-theta")),
		PhiMin:         radians(ctx.Float64("phi-min")),
		PhiMax:         radians(ctx.Float64("phi-max")),
		RaysPhi:        uint32(ctx.Int("rays-phi")),
		Depth:          uint32(depth),
		SortCandidates: !ctx.Bool("no-sort"),
	}

	pipeline, err := caster.New(dev, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	err = pipeline.UploadIndex(tree, cloud, triangles)
	if err != nil {
		return err
	}

	err = pipeline.Run()
	if err != nil {
		return err
	}

	pointVis, err := pipeline.PointVisibility()
	if err != nil {
		return err
	}
	leafVis, err := pipeline.LeafVisibility()
	if err != nil {
		return err
	}

	displayCastStats(cfg, len(cloud.Points), popCount(pointVis), popCount(leafVis))
	return nil
}

func displayCastStats(cfg caster.Config, totalPoints, visiblePoints, touchedLeaves int) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Cast", "Value"})
	table.Append([]string{"Rays", fmt.Sprintf("%d (%d x %d)", cfg.RayCount(), cfg.RaysTheta, cfg.RaysPhi)})
	table.Append([]string{"Leaves touched", fmt.Sprintf("%d", touchedLeaves)})
	table.Append([]string{"Visible points", fmt.Sprintf("%d of %d", visiblePoints, totalPoints)})
	table.Render()

	logger.Noticef("cast statistics\n%s", buf.String())
}

// Pick the compute device to cast on. The cpu device is the default and the
// no-opencl fallback; gpu/all select from the available opencl devices after
// applying the blacklist filters.
func selectDevice(ctx *cli.Context) (device.Device, error) {
	sel := ctx.String("device")
	if sel == "cpu" {
		return cpu.New(), nil
	}

	var typeMask device.Type = device.AllDevices
	if sel == "gpu" {
		typeMask = device.GpuDevice
	}

	candidates, err := opencl.SelectDevices(typeMask, "")
	if err != nil {
		return nil, err
	}

	blackList := ctx.StringSlice("blacklist")
	for _, dev := range candidates {
		blacklisted := false
		for _, text := range blackList {
			if strings.Contains(dev.Name(), text) {
				blacklisted = true
				break
			}
		}
		if blacklisted {
			continue
		}

		err = dev.Init(ctx.String("kernel-file"))
		if err != nil {
			logger.Warningf("skipping device %q: %v", dev.Name(), err)
			continue
		}
		return dev, nil
	}

	return nil, fmt.Errorf("no usable opencl device matches selector %q", sel)
}

func popCount(mask []uint32) int {
	total := 0
	for _, word := range mask {
		total += bits.OnesCount32(word)
	}
	return total
}

func radians(degrees float64) float32 {
	return float32(degrees * math.Pi / 180)
}
