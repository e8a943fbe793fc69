// Command socialctl is a terminal client for the social layer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/R3E-Network/social_layer/internal/cli"
	"github.com/R3E-Network/social_layer/internal/config"
	"github.com/R3E-Network/social_layer/internal/viewmodel"
)

const program = "socialctl"

type command struct {
	name  string
	usage string
	flags []string
	// offline commands run without configuration.
	offline bool
	run     func(ctx context.Context, a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "login", usage: "Sign in and remember the session", flags: []string{"-email", "-password", "-name"}, run: cmdLogin},
		{name: "logout", usage: "Sign out and forget the session", run: cmdLogout},
		{name: "whoami", usage: "Show the signed-in profile", run: cmdWhoami},
		{name: "chats", usage: "List chats, most recent first", run: cmdChats},
		{name: "open", usage: "Open a private chat with a user", flags: []string{"-user"}, run: cmdOpen},
		{name: "messages", usage: "Show a chat's messages", flags: []string{"-chat", "-follow"}, run: cmdMessages},
		{name: "send", usage: "Send a message", flags: []string{"-chat", "-text"}, run: cmdSend},
		{name: "read", usage: "Mark a chat read", flags: []string{"-chat"}, run: cmdRead},
		{name: "notifications", usage: "List notifications", flags: []string{"-watch", "-limit", "-read-all"}, run: cmdNotifications},
		{name: "events", usage: "List upcoming events", flags: []string{"-category", "-limit"}, run: cmdEvents},
		{name: "event", usage: "Show an event", flags: []string{"-event"}, run: cmdEvent},
		{name: "join", usage: "Join an event", flags: []string{"-event"}, run: cmdJoin},
		{name: "leave", usage: "Leave an event", flags: []string{"-event"}, run: cmdLeave},
		{name: "review", usage: "Review an event", flags: []string{"-event", "-rating", "-comment"}, run: cmdReview},
		{name: "report", usage: "Report a user, event or message", flags: []string{"-type", "-target", "-reason"}, run: cmdReport},
		{name: "reports", usage: "List open reports (admin)", run: cmdReports},
		{name: "resolve", usage: "Resolve or dismiss a report (admin)", flags: []string{"-report", "-dismiss"}, run: cmdResolve},
		{name: "ban", usage: "Ban or unban a user (admin)", flags: []string{"-user", "-undo"}, run: cmdBan},
		{name: "metrics", usage: "Print gateway metrics", run: cmdMetrics},
		{name: "completion", usage: "Print or install shell completion", flags: []string{"-install"}, offline: true},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func completionCommands() []cli.Command {
	out := make([]cli.Command, 0, len(commands))
	for _, c := range commands {
		out = append(out, cli.Command{Name: c.name, Usage: c.usage, Flags: c.flags})
	}
	return out
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [-env file] [-o text|json|yaml] <command> [flags]\n\nCommands:\n", program)
	sorted := append([]command(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for _, c := range sorted {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.usage)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", "", "Path to a .env file (default ./.env when present)")
	format := fs.String("o", cli.FormatText, "Output format: text|json|yaml")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 || fs.Arg(0) == "help" {
		usage(stderr)
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return 2
	}

	out, err := cli.NewPrinter(stdout, *format)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	errOut, _ := cli.NewPrinter(stderr, cli.FormatText)
	if cmd.offline {
		return report(errOut, cmdCompletion(out, stdout, stderr, fs.Args()[1:]))
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}
	a, err := newApp(ctx, cfg, out, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	a.stdout = stdout
	a.errOut = errOut
	defer a.Close()

	err = cmd.run(ctx, a, fs.Args()[1:])
	if err != nil {
		a.log.WithError(err).WithField("command", name).Debug("command failed")
	}
	return report(errOut, err)
}

func report(errOut *cli.Printer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errShown):
		return 1
	case errors.Is(err, errNotLoggedIn):
		errOut.Error(err.Error())
		return 1
	default:
		errOut.Error(fmt.Sprintf("%s (%v)", viewmodel.ErrorMessage(err), err))
		return 1
	}
}
