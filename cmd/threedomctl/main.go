package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/Carmen-Shannon/oxy-threedom/engine/config"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
)

const ThreedomCtlVersion = "0.1.0"

func main() {
	usage := `3DOM control.

Loads glTF models, runs sandboxed scripts against them and hosts remote sandboxes.

Usage:
    threedomctl inspect <model> [--config=<path>]
    threedomctl run <model> <script> [--capabilities=<list>] [--out=<path>] [--remote=<url>] [--config=<path>]
    threedomctl pack <gltf> <out> [--bin=<path>]
    threedomctl unpack <glb> <outdir>
    threedomctl serve [--addr=<addr>] [--script=<path>] [--config=<path>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --config=<path>          TOML configuration file.
    --capabilities=<list>    Comma separated capabilities, overrides the config.
    --out=<path>             Write the mutated model as GLB.
    --remote=<url>           Run the script in the sandbox server at this websocket URL.
    --bin=<path>             Binary chunk to embed.
    --addr=<addr>            Listen address, overrides the config.
    --script=<path>          Startup script for every hosted sandbox, overrides the config.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ThreedomCtlVersion)
	if err != nil {
		panic(err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_ = flag.Set("logtostderr", "true")
	_ = flag.Set("v", strconv.Itoa(cfg.Log.Verbosity))
	defer glog.Flush()

	if inspect_, _ := opts.Bool("inspect"); inspect_ {
		err = inspect(opts, cfg)
	} else if run_, _ := opts.Bool("run"); run_ {
		err = run(opts, cfg)
	} else if pack_, _ := opts.Bool("pack"); pack_ {
		err = pack(opts)
	} else if unpack_, _ := opts.Bool("unpack"); unpack_ {
		err = unpack(opts)
	} else if serve_, _ := opts.Bool("serve"); serve_ {
		err = serve(opts, cfg)
	}
	if err != nil {
		glog.Flush()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(opts docopt.Opts) (config.Config, error) {
	path, _ := opts.String("--config")
	return config.Load(path)
}
