// Command floorplan converts floor plan images into 3D models.
//
//	floorplan [flags] plan.png [more.png | dir ...]
//	floorplan photogrammetry photo1.jpg photo2.jpg ...
//
// One JSON status record is printed per input, in input order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"github.com/chazu/floorplan3d/pkg/config"
	"github.com/chazu/floorplan3d/pkg/photogrammetry"
	"github.com/chazu/floorplan3d/pkg/pipeline"
	"github.com/chazu/floorplan3d/pkg/raster"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime)
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process globals. It returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "photogrammetry" {
		if _, err := photogrammetry.Run(stdout, args[1:]); err != nil {
			fmt.Fprintf(stderr, "usage: floorplan photogrammetry <image1> [image2] ...\n")
			return 2
		}
		return 0
	}

	opts, cfg, err := parse(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "[-] %v\n", err)
		return 2
	}

	if opts.writeConfig != "" {
		if err := cfg.Save(opts.writeConfig); err != nil {
			fmt.Fprintf(stderr, "[-] write config: %v\n", err)
			return 1
		}
		if len(opts.inputs) == 0 {
			return 0
		}
	}

	inputs, err := expand(opts.inputs)
	if err != nil {
		fmt.Fprintf(stderr, "[-] %v\n", err)
		return 2
	}
	if len(inputs) == 0 {
		fmt.Fprintf(stderr, "usage: floorplan [flags] <image|dir> ...\n")
		return 2
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "[-] %v\n", err)
		return 2
	}
	if err := p.KernelAvailable(); err != nil {
		log.Printf("[*] boolean kernel unavailable, openings will not be cut: %v", err)
	}

	code := 0
	for _, st := range p.Batch(ctx, inputs, opts.outDir, opts.workers) {
		if err := st.Write(stdout); err != nil {
			return 1
		}
		if !st.Success {
			code = 1
		}
	}
	return code
}

type options struct {
	outDir      string
	workers     int
	writeConfig string
	inputs      []string
}

// parse builds the configuration: defaults, then the -config file (or
// FLOORPLAN_CONFIG), then FLOORPLAN_* variables, then flags. The flags
// are parsed twice so that they are bound to the loaded file's values.
func parse(args []string, stderr io.Writer) (options, *config.Config, error) {
	var opts options
	configPath := os.Getenv("FLOORPLAN_CONFIG")

	newFlagSet := func(cfg *config.Config) *flag.FlagSet {
		fs := flag.NewFlagSet("floorplan", flag.ContinueOnError)
		fs.SetOutput(stderr)
		fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
		fs.StringVar(&opts.outDir, "out", "output", "Output directory")
		fs.IntVar(&opts.workers, "workers", runtime.NumCPU(), "Images processed in parallel")
		fs.StringVar(&opts.writeConfig, "write-config", "", "Write the effective configuration to this file")
		cfg.RegisterFlags(fs)
		return fs
	}

	if err := newFlagSet(config.Default()).Parse(args); err != nil {
		return opts, nil, err
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return opts, nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	fs := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	opts.inputs = fs.Args()
	return opts, cfg, nil
}

// expand replaces directories with the supported images they contain.
func expand(inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			// Missing files are reported per input by the pipeline.
			out = append(out, in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && raster.Supported(e.Name()) {
				found = append(found, filepath.Join(in, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
