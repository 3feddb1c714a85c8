package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/jitlink"
	"github.com/tinyrange/jitlink/internal/isa"
	"github.com/tinyrange/jitlink/internal/timeslice"
)

func main() {
	if err := run(); err != nil {
		// Module and function names come from the descriptor.
		fmt.Fprintf(os.Stderr, "jitrun: %s\n", ansi.Strip(err.Error()))
		os.Exit(1)
	}
}

func run() error {
	target := flag.String("target", "", "Target configuration file (YAML)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	dump := flag.Bool("dump", false, "Print the linked code of every function")
	noExec := flag.Bool("no-exec", false, "Compile and link without running the start function")
	verifier := flag.Bool("verifier", true, "Verify functions before code generation")
	wx := flag.Bool("wx", false, "Map code read+execute instead of read+write+execute")
	timesliceFile := flag.String("timeslice", "", "Write phase timings to this file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <module.yaml>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compile a module to native code, link it in memory and run its start function.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s examples/countdown.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dump -no-exec examples/countdown.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("module descriptor required")
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *timesliceFile != "" {
		f, err := os.Create(*timesliceFile)
		if err != nil {
			return fmt.Errorf("create timeslice file: %w", err)
		}
		defer f.Close()

		w, err := timeslice.Open(f)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				slog.Warn("Failed to write timeslice file", "error", err)
			}
		}()
	}

	// Flags given on the command line override the target file.
	var opts []isa.Option
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "verifier":
			opts = append(opts, isa.WithVerifier(*verifier))
		case "wx":
			opts = append(opts, isa.WithWriteXorExecute(*wx))
		}
	})

	var (
		cfg jitlink.Config
		err error
	)
	if *target != "" {
		cfg, err = jitlink.LoadConfig(*target, opts...)
	} else {
		cfg, err = jitlink.NewConfig(opts...)
	}
	if err != nil {
		return err
	}
	slog.Debug("target", "config", cfg.String())

	mod, bindings, err := jitlink.Load(flag.Arg(0))
	if err != nil {
		return err
	}

	var compileOpts jitlink.Options
	if !*debug && term.IsTerminal(int(os.Stderr.Fd())) && len(mod.Functions) > 0 {
		pb := progressbar.Default(int64(len(mod.Functions)), "compiling")
		defer pb.Close()
		compileOpts.Progress = func(done, total int) {
			pb.Add(1)
		}
	}

	start := time.Now()
	linked, err := jitlink.Compile(mod, bindings, cfg, compileOpts)
	if err != nil {
		return err
	}
	defer linked.Release()

	slog.Info("Module linked",
		"functions", linked.Len(),
		"imports", linked.ImportCount(),
		"elapsed", time.Since(start),
	)

	if *dump {
		for i := 0; i < linked.Len(); i++ {
			fmt.Printf("%s @ %#x (%d bytes)\n%s\n",
				ansi.Strip(linked.Name(i)), linked.Address(i), len(linked.Code(i)), hex.Dump(linked.Code(i)))
		}
	}

	if *noExec {
		return nil
	}

	start = time.Now()
	if err := jitlink.Execute(linked); err != nil {
		return err
	}
	slog.Info("Start function returned", "elapsed", time.Since(start))
	return nil
}
