package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile string
	MqttMode   bool
	HttpMode   bool
	HttpPort   int
	ReplayFile string
	OutputFile string
	Format     string
}

// Runner is the set of modes main can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunReplay() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to the selected mode
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("obstaclemap", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode: fuse observations and publish the occupancy grid")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for grid and obstacle endpoints")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")
	fs.StringVar(&opts.ReplayFile, "replay", "", "Replay a newline-delimited observation log and exit")
	fs.StringVar(&opts.OutputFile, "output", "occupancy-grid.png", "Output file for --replay mode")
	fs.StringVar(&opts.Format, "format", "", "Replay output format: png, json, svg or geojson (default: from --output extension)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "obstaclemap version: %s\n", Version)
	app.ApplyOptions(opts)

	if opts.ReplayFile != "" {
		return app.RunReplay()
	}

	if opts.MqttMode || opts.HttpMode {
		return app.RunService()
	}

	fmt.Fprintln(out, "obstaclemap service starting...")
	fmt.Fprintln(out, "Use --mqtt to fuse observations from MQTT and publish the occupancy grid")
	fmt.Fprintln(out, "Use --http to serve the grid and obstacles over HTTP")
	fmt.Fprintln(out, "Use --mqtt --http to run both together")
	fmt.Fprintln(out, "Use --replay=FILE --output=grid.png to rasterize a recorded observation log")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, topics and manager tolerances")
	return nil
}
