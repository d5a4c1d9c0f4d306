// Command casc fetches and inspects CASC content on a CDN.
//
// Usage:
//
//	casc -remote URL [-cache DIR] [-v] index <archive-key>
//	casc -remote URL [-cache DIR] [-o FILE] fetch <path>
//	casc -remote URL [-cache DIR] [-o FILE] [-verify] extract <archive-key> <content-key> <size> <offset>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/meigma/casc"
	"github.com/meigma/casc/cdn"
)

func main() {
	var (
		remote   = flag.String("remote", "", "CDN endpoint, e.g. http://level3.blizzard.com/tpr/wow")
		cacheDir = flag.String("cache", "", "cache directory (optional)")
		outPath  = flag.String("o", "", "output file (default stdout)")
		verify   = flag.Bool("verify", false, "verify content checksums")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if err := run(*remote, *cacheDir, *outPath, *verify, *verbose, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "casc:", err)
		os.Exit(1)
	}
}

func run(remote, cacheDir, outPath string, verify, verbose bool, args []string) error {
	if remote == "" {
		return fmt.Errorf("-remote is required")
	}
	if len(args) == 0 {
		return fmt.Errorf("missing command: index, fetch, or extract")
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []cdn.Option{cdn.WithLogger(logger)}
	if cacheDir != "" {
		opts = append(opts, cdn.WithCacheDir(cacheDir))
	}
	client, err := cdn.NewClient(remote, opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch cmd, args := args[0], args[1:]; cmd {
	case "index":
		return runIndex(ctx, client, verify, args)
	case "fetch":
		return runFetch(ctx, client, outPath, args)
	case "extract":
		return runExtract(ctx, client, outPath, verify, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runIndex(ctx context.Context, client *cdn.Client, verify bool, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: index <archive-key>")
	}
	idx, err := client.DataIndex(ctx, args[0], verify)
	if err != nil {
		return err
	}
	for rec, err := range idx.Records() {
		if err != nil {
			return err
		}
		fmt.Printf("%s %10d %10d\n", rec.Key, rec.Size, rec.Offset)
	}
	return nil
}

func runFetch(ctx context.Context, client *cdn.Client, outPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fetch <path>")
	}
	data, err := client.Bytes(ctx, args[0])
	if err != nil {
		return err
	}
	return write(outPath, data)
}

func runExtract(ctx context.Context, client *cdn.Client, outPath string, verify bool, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: extract <archive-key> <content-key> <size> <offset>")
	}
	key, err := casc.ParseKey(args[1])
	if err != nil {
		return err
	}
	size, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("bad size %q: %w", args[2], err)
	}
	offset, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil {
		return fmt.Errorf("bad offset %q: %w", args[3], err)
	}

	archive := casc.NewArchive(args[0], client)
	defer archive.Close()

	data, err := archive.File(ctx, key, uint32(size), uint32(offset), verify)
	if err != nil {
		return err
	}
	return write(outPath, data)
}

func write(outPath string, data []byte) error {
	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o600)
}
