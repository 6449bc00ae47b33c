package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/antcore/internal/client"
)

// clientOptions holds the flags shared by all client subcommands.
type clientOptions struct {
	addr    string
	timeout time.Duration
	gzip    bool
	raw     bool // print the body byte for byte
}

func (o *clientOptions) client() *client.Client {
	addr := o.addr
	if addr == "" {
		addr = os.Getenv("ANTCORE_URL")
	}

	cfg := client.DefaultConfig()
	if addr != "" {
		cfg.BaseURL = addr
	}
	cfg.Timeout = o.timeout
	cfg.Gzip = o.gzip
	return client.New(cfg)
}

func (o *clientOptions) bind(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringVar(&o.addr, "addr", "", "Control server URL (default $ANTCORE_URL or "+client.DefaultBaseURL+")")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}

// call has the shape of a *client.Client method expression.
type call func(c *client.Client, ctx context.Context) (client.Reply, error)

func newClientCommands() []*cobra.Command {
	simple := func(use, short string, fn call) *cobra.Command {
		opts := &clientOptions{}
		return opts.bind(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, fn)
			},
		})
	}

	cmds := []*cobra.Command{
		simple("ping", "Check that the server is alive", (*client.Client).Ping),
		simple("status", "Show the current app's status", (*client.Client).Status),
		simple("start", "Start the current app", (*client.Client).Start),
		simple("stop", "Stop the current app", (*client.Client).Stop),
		simple("remove", "Remove the current app", (*client.Client).Remove),
	}

	codeOpts := &clientOptions{raw: true}
	cmds = append(cmds, codeOpts.bind(&cobra.Command{
		Use:   "code",
		Short: "Print the installed app code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, codeOpts, (*client.Client).Code)
		},
	}))

	cmdOpts := &clientOptions{}
	cmds = append(cmds, cmdOpts.bind(&cobra.Command{
		Use:   "command <name>",
		Short: "Send a named command to the current app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cmdOpts, func(c *client.Client, ctx context.Context) (client.Reply, error) {
				return c.Command(ctx, args[0])
			})
		},
	}))

	installOpts := &clientOptions{}
	install := installOpts.bind(&cobra.Command{
		Use:   "install <file|->",
		Short: "Install an app bundle, replacing the current app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readBundle(cmd, args[0])
			if err != nil {
				return err
			}
			return run(cmd, installOpts, func(c *client.Client, ctx context.Context) (client.Reply, error) {
				return c.Install(ctx, code)
			})
		},
	})
	install.Flags().BoolVar(&installOpts.gzip, "gzip", false, "Compress the upload")

	return append(cmds, install)
}

func readBundle(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return code, nil
}

// run performs one request, printing the body to stdout and the status to
// stderr. Non-2xx answers become errors so the exit code reflects them.
func run(cmd *cobra.Command, opts *clientOptions, fn call) error {
	reply, err := fn(opts.client(), cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, reply.Message)
	if reply.Message != "" && !strings.HasSuffix(reply.Message, "\n") && !opts.raw {
		fmt.Fprintln(out)
	}

	if !reply.OK() {
		return fmt.Errorf("server answered %d", reply.Status)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("%d OK", reply.Status))
	return nil
}
