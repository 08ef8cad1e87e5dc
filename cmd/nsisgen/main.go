// Command nsisgen writes NSIS installer scripts from a YAML package
// description and a directory of files to install.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args and executes the selected command, returning the process
// exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	global := &Global{Stdout: stdout, Stderr: stderr}

	exited := -1
	parser, err := kong.New(&cli,
		kong.Name("nsisgen"),
		kong.Description("Generate NSIS installer scripts from a package description."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exited = code }),
		kong.Vars{"version": version},
		kong.Bind(global),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		fmt.Fprintf(stderr, "nsisgen: %v\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if exited >= 0 {
		return exited
	}
	if err != nil {
		fmt.Fprintf(stderr, "nsisgen: %v\n", err)
		return 2
	}

	if err := kctx.Run(); err != nil {
		global.logger().Error("command failed", "command", kctx.Command(), "error", err)
		return 1
	}
	return 0
}
