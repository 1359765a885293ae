package cmd

import (
	"github.com/hartkaymann/viewsheds-sub000/log"
	"github.com/urfave/cli"
)

var logger = log.New("viewsheds")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
