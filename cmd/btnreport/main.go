package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/cmd/btnreport/probe"
	"github.com/temoto/btnreport/cmd/btnreport/run"
	"github.com/temoto/btnreport/cmd/btnreport/sim"
	"github.com/temoto/btnreport/cmd/btnreport/subcmd"
	"github.com/temoto/btnreport/config"
	"github.com/temoto/btnreport/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	sim.Mod,
	probe.Mod,
}

func main() {
	flags := flag.NewFlagSet("btnreport", flag.ContinueOnError)
	flagConfig := flags.String("config", "btnreport.hcl", "")
	flagVersion := flags.Bool("version", false, "print build version and exit")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: btnreport [options] command\n\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flags.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
		fmt.Fprintf(flags.Output(), "\nOptions:\n")
		flags.PrintDefaults()
	}
	err := flags.Parse(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			flags.Usage()
			os.Exit(0)
		}
		log.Fatal(err)
	}

	if *flagVersion {
		fmt.Printf("btnreport %s\n", BuildVersion)
		os.Exit(0)
	}

	mod, err := subcmd.Parse(flags.Arg(0), modules)
	if err != nil {
		flags.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	log.Infof("btnreport version=%s starting %s", BuildVersion, mod.Name)

	fs, err := config.NewOsFullReader(".")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	cfg := config.MustReadConfig(log, fs, *flagConfig)
	if !cfg.LogDebug {
		log.SetLevel(log2.LInfo)
	}
	log.Debugf("config=%+v", cfg)

	if err := mod.Main(context.Background(), log, cfg); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
