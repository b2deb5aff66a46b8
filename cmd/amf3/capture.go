package main

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/DMA-Software/dma-goamf/internal/capture"
	"github.com/DMA-Software/dma-goamf/internal/config"
)

func runCapture(env *environment, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("capture needs a subcommand: ls or cat")
	}
	switch args[0] {
	case "ls":
		return runCaptureList(env, args[1:])
	case "cat":
		return runCaptureCat(env, args[1:])
	default:
		return fmt.Errorf("unknown capture subcommand %q (want ls or cat)", args[0])
	}
}

func openCaptureStore(configPath, dir string) (*capture.Store, error) {
	if dir != "" {
		return capture.Open(dir, capture.PolicyAuto, nil)
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Capture.Dir == "" {
		return nil, fmt.Errorf("capture.dir is not configured")
	}
	return capture.Open(cfg.Capture.Dir, cfg.Capture.Compression, nil)
}

func runCaptureList(env *environment, args []string) error {
	var configPath, dir string
	flags := newFlagSet(env, "capture ls")
	flags.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvVar+")")
	flags.StringVar(&dir, "dir", "", "capture directory, overriding the config")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := noArgs(flags); err != nil {
		return err
	}

	store, err := openCaptureStore(configPath, dir)
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tREQUEST\tRESPONSE\tENDPOINT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s (%d)\t%s (%d)\t%s\n",
			e.Time.Format("2006-01-02T15:04:05Z07:00"), e.Status,
			e.Request[:12], e.RequestSize, e.Response[:12], e.ResponseSize, e.Endpoint)
	}
	return tw.Flush()
}

func runCaptureCat(env *environment, args []string) error {
	var (
		configPath, dir string
		decode          bool
		offset          int
	)
	flags := newFlagSet(env, "capture cat")
	flags.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvVar+")")
	flags.StringVar(&dir, "dir", "", "capture directory, overriding the config")
	flags.BoolVarP(&decode, "decode", "d", false, "print the body as JSON instead of raw bytes")
	flags.IntVar(&offset, "offset", 0, "with --decode, skip this many bytes before the first value")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("capture cat takes exactly one hash")
	}

	store, err := openCaptureStore(configPath, dir)
	if err != nil {
		return err
	}
	body, err := findBody(store, flags.Arg(0))
	if err != nil {
		return err
	}
	if decode {
		return decodeAMF(bytes.NewReader(body), env.stdout, offset, "json", false)
	}
	_, err = env.stdout.Write(body)
	return err
}

// findBody resolves a full hash, or a prefix of one listed in the index.
func findBody(store *capture.Store, ref string) ([]byte, error) {
	if len(ref) == 64 {
		hash, err := capture.ParseHash(ref)
		if err != nil {
			return nil, err
		}
		return store.Get(hash)
	}

	entries, err := store.List()
	if err != nil {
		return nil, err
	}
	var match string
	for _, e := range entries {
		for _, candidate := range []string{e.Request, e.Response} {
			if len(ref) > 0 && len(candidate) >= len(ref) && candidate[:len(ref)] == ref {
				if match != "" && match != candidate {
					return nil, fmt.Errorf("hash prefix %q is ambiguous", ref)
				}
				match = candidate
			}
		}
	}
	if match == "" {
		return nil, fmt.Errorf("no captured body matches %q", ref)
	}
	hash, err := capture.ParseHash(match)
	if err != nil {
		return nil, err
	}
	return store.Get(hash)
}
