// Command-line interface to pixels storage: serves the HTTP API and performs
// storage maintenance on a configured storage root.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/pixstore"
	"github.com/janelia-flyem/pixstore/buffer"
	"github.com/janelia-flyem/pixstore/pix"
	"github.com/janelia-flyem/pixstore/server"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to the TOML server configuration.
	configFile = flag.String("config", "", "")
)

const helpMessage = `
pixstore stores microscopy pixel data in flat files, tiled pyramids or original files

Usage: pixstore [options] <command>

      -config     =string   Path to TOML configuration file.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	serve                   Serve the HTTP API.
	info    <pixels id>     Show the storage a pixels set resolves to.
	create  <pixels id>     (Re)initialize flat storage for a pixels set.
	remove  <pixels id>...  Delete flat storage and pyramids.
	pyramid <pixels id>     Build a pyramid from flat storage.
	version                 Show version.

All commands but version require -config.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		pix.Verbose = true
		pix.SetLogMode(pix.DebugMode)
	}

	// Capture ctrl+c and other interrupts for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := DoCommand(ctx, flag.Args())
	pix.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("blank command")
	}
	name, args := args[0], args[1:]
	if name == "version" {
		fmt.Printf("pixstore %s\n", pixstore.Version)
		return nil
	}

	c, err := server.LoadConfig(*configFile)
	if err != nil {
		return err
	}
	c.Logging.SetLogger()
	s, err := server.New(c)
	if err != nil {
		return err
	}
	defer s.Close()

	switch name {
	case "serve":
		return s.Serve(ctx)
	case "info":
		return doInfo(ctx, s, args)
	case "create":
		return doCreate(s, args)
	case "remove":
		return doRemove(s, args)
	case "pyramid":
		return doPyramid(ctx, s, args)
	default:
		return fmt.Errorf("unknown command %q; try 'pixstore help'", name)
	}
}

func parseIDs(args []string, minIDs int) ([]int64, error) {
	if len(args) < minIDs {
		return nil, fmt.Errorf("expected at least %d pixels id(s)", minIDs)
	}
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad pixels id %q", arg)
		}
		ids[i] = id
	}
	return ids, nil
}

func lookup(s *server.Server, args []string) (*pix.Pixels, error) {
	ids, err := parseIDs(args, 1)
	if err != nil {
		return nil, err
	}
	if len(ids) != 1 {
		return nil, fmt.Errorf("expected one pixels id, got %d", len(ids))
	}
	return s.Manifest().Pixels(ids[0])
}

func doInfo(ctx context.Context, s *server.Server, args []string) error {
	px, err := lookup(s, args)
	if err != nil {
		return err
	}
	b, err := s.Service().PixelBuffer(ctx, px, s.Manifest(), false)
	if err != nil {
		return err
	}
	defer b.Close()
	info := map[string]interface{}{
		"pixels":           px,
		"kind":             b.Kind(),
		"path":             b.Path(),
		"writable":         b.Writable(),
		"requires_pyramid": s.Service().IsPyramidRequired(px),
		"size":             humanize.Bytes(uint64(px.TotalSize())),
	}
	if pb, ok := b.(*buffer.PyramidBuffer); ok {
		info["levels"] = pb.ResolutionLevels()
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func doCreate(s *server.Server, args []string) error {
	px, err := lookup(s, args)
	if err != nil {
		return err
	}
	b, err := s.Service().CreatePixelBuffer(px)
	if err != nil {
		return err
	}
	fmt.Printf("Initialized %s of flat storage at %s\n", humanize.Bytes(uint64(px.TotalSize())), b.Path())
	return b.Close()
}

func doRemove(s *server.Server, args []string) error {
	ids, err := parseIDs(args, 1)
	if err != nil {
		return err
	}
	if err := s.Service().RemovePixels(ids); err != nil {
		return err
	}
	fmt.Printf("Removed storage of %d pixels set(s)\n", len(ids))
	return nil
}

func doPyramid(ctx context.Context, s *server.Server, args []string) error {
	px, err := lookup(s, args)
	if err != nil {
		return err
	}
	paths := s.Service().Resolver()
	pixelsPath := paths.PixelsPath(px.ID)
	if !pix.FileExists(pixelsPath) {
		return fmt.Errorf("pixels %d has no flat storage at %s", px.ID, pixelsPath)
	}
	pyramidPath := paths.PyramidPath(pixelsPath)
	if err := s.Builder().Build(ctx, px, pixelsPath, pyramidPath); err != nil {
		return err
	}
	fmt.Printf("Pyramid for pixels %d at %s\n", px.ID, pyramidPath)
	return nil
}
