package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/justyntemme/gainstage/pkg/framework/debug"
)

var (
	version = "0.1.0"
)

// Globals are flags shared by every command.
type Globals struct {
	LogLevel string `help:"Log level (${enum})." default:"info" enum:"debug,info,warn,error,off"`
	LogFile  string `type:"path" help:"Append logs to this file instead of stderr."`
}

// CLI defines the command-line interface
type CLI struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Show version information"`

	Render  RenderCmd  `cmd:"" help:"Level-match an After file against a Before file and write the result."`
	Latency LatencyCmd `cmd:"" help:"Estimate how many samples the After file lags the Before file."`
}

// Logger configures the default logger from the global flags and returns
// it. The returned closer must be closed when the command finishes.
func (g *Globals) Logger() (*debug.Logger, io.Closer, error) {
	level, err := debug.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	debug.SetLevel(level)
	debug.SetPrefix("gainstage")
	debug.SetFlags(debug.FlagTime | debug.FlagLevel | debug.FlagPrefix)
	var closer io.Closer = io.NopCloser(nil)
	if g.LogFile != "" {
		file, err := debug.OpenLogFile(g.LogFile)
		if err != nil {
			return nil, nil, err
		}
		debug.SetFlags(debug.DefaultFlags)
		debug.SetOutput(file)
		closer = logFile{file}
	}
	return debug.Default(), closer, nil
}

// logFile points the default logger back at stderr when closed.
type logFile struct {
	*os.File
}

func (f logFile) Close() error {
	debug.SetOutput(os.Stderr)
	return f.File.Close()
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("gainstage"),
		kong.Description("Offline Before/After level matching"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "gainstage: %v\n", err)
		os.Exit(1)
	}
}
