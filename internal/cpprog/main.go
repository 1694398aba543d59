// Public domain.

// Package cpprog is the crabpol command.
package cpprog

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/soniakeys/exit"

	"github.com/vyoma-m/crabpol/internal/catalog"
	"github.com/vyoma-m/crabpol/internal/config"
	"github.com/vyoma-m/crabpol/internal/mapmaker"
	"github.com/vyoma-m/crabpol/internal/skymap"
	"github.com/vyoma-m/crabpol/internal/tod"
	"github.com/vyoma-m/crabpol/internal/todsim"
)

const versionString = "crabpol version 0.3"
const copyrightString = "Public domain."

type commandLine struct {
	fnConfig string // -c
	dataPath string // -p
	outDir   string // -o
	freqs    string // -f
	mode     string // -mode
	fnDB     string // -db
	sim      string // -sim
}

func Main() {
	defer exit.Handler()

	cl := parseCommandLine()
	if cl.sim != "" {
		simulate(cl.sim)
		return
	}
	cfg := readConfig(cl)
	mode := parseMode(cl.mode)

	log := slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []mapmaker.Option{mapmaker.WithLogger(log)}
	if cfg.Catalog != "" {
		cat, err := catalog.Open(ctx, cfg.Catalog)
		if err != nil {
			exit.Log(err)
		}
		defer cat.Close()
		opts = append(opts, mapmaker.WithRecorder(cat))
	}
	m := mapmaker.New(cfg, tod.NewFITSAssembler(cfg, tod.WithLogger(log)), opts...)
	log.Info("run", "id", m.RunID(), "instrument", cfg.Inst(),
		"frequencies", cfg.Frequencies, "mode", mode, "workers", cfg.Workers)
	if err := m.Run(ctx, mode); err != nil {
		exit.Log(err)
	}
}

func parseCommandLine() *commandLine {
	var cl commandLine
	dv := flag.Bool("v", false, "")
	flag.StringVar(&cl.fnConfig, "c", "", "")
	flag.StringVar(&cl.dataPath, "p", "", "")
	flag.StringVar(&cl.outDir, "o", "", "")
	flag.StringVar(&cl.freqs, "f", "", "")
	flag.StringVar(&cl.mode, "mode", "grid", "")
	flag.StringVar(&cl.fnDB, "db", "", "")
	flag.StringVar(&cl.sim, "sim", "", "")
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: crabpol [options]          make maps
       crabpol -sim <dir>         write a synthetic data tree
       crabpol -v                 display version and copyright

Options:
       -c <config-file>           YAML configuration
       -p <path>                  data path
       -o <dir>                   output directory
       -f <freq>[,<freq>...]      frequencies, GHz
       -mode grid|healpix         binning, default grid
       -db <catalog-file>         record maps in an SQLite catalog

Environment variables ` + config.EnvPrefix + `_* override the configuration file.
`)
	}
	flag.Parse()
	switch {
	case *dv:
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	case flag.NArg() != 0:
		flag.Usage()
		os.Exit(1)
	}
	return &cl
}

// readConfig applies command line options over the configuration file and
// environment.
func readConfig(cl *commandLine) *config.Config {
	c, err := config.Read(cl.fnConfig)
	if err != nil {
		exit.Log(err)
	}
	if cl.dataPath != "" {
		c.DataPath = cl.dataPath
	}
	if cl.outDir != "" {
		c.OutputDir = cl.outDir
	}
	if cl.fnDB != "" {
		c.Catalog = cl.fnDB
	}
	if cl.freqs != "" {
		c.Frequencies = nil
		for _, f := range strings.Split(cl.freqs, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				exit.Log(fmt.Errorf("-f: %w", err))
			}
			c.Frequencies = append(c.Frequencies, n)
		}
	}
	cfg, err := config.New(c)
	if err != nil {
		exit.Log(err)
	}
	return cfg
}

func parseMode(s string) skymap.Mode {
	switch s {
	case "grid", string(skymap.ModeGrid):
		return skymap.ModeGrid
	case "healpix", string(skymap.ModeHealpix):
		return skymap.ModeHealpix
	}
	exit.Log(fmt.Errorf("%w: unknown mode %q", config.ErrConfiguration, s))
	return ""
}

func simulate(dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		exit.Log(err)
	}
	n, err := todsim.Generate(dir, todsim.DefaultOptions())
	if err != nil {
		exit.Log(err)
	}
	fmt.Printf("%d detector files written under %s.\n", n, dir)
}
