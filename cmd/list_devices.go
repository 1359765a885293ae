package cmd

import (
	"bytes"
	"fmt"

	"github.com/urfave/cli"

	"github.com/hartkaymann/viewsheds-sub000/caster/device/opencl"
)

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	platforms, err := opencl.GetPlatformInfo()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s):\n\n", len(platforms)))
	for pIdx, platformInfo := range platforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n%s", pIdx, platformInfo.String()))
	}

	logger.Notice(buf.String())
	return nil
}
