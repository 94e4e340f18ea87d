package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophadmin/internal/client/guard"
	"github.com/dmitrijs2005/gophadmin/internal/client/session"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// Shell views. Commands opening the same view share its guard.
const (
	pathLogin = "/login"
	pathCode  = "/login/code"
	pathHome  = "/me"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Phase() session.Phase
	Login(ctx context.Context, email string) error
	Verify(ctx context.Context, code string) error
	Resend(ctx context.Context) error
	Cancel(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Status(ctx context.Context) error
	Refresh(ctx context.Context) error
}

type command struct {
	path string
	run  func(ctx context.Context, a execIface, args []string) error
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

var commands = map[string]command{
	"login": {path: pathLogin, run: func(ctx context.Context, a execIface, args []string) error {
		return a.Login(ctx, firstArg(args))
	}},
	"verify": {path: pathCode, run: func(ctx context.Context, a execIface, args []string) error {
		return a.Verify(ctx, firstArg(args))
	}},
	"resend": {path: pathCode, run: func(ctx context.Context, a execIface, _ []string) error {
		return a.Resend(ctx)
	}},
	"cancel": {path: pathCode, run: func(ctx context.Context, a execIface, _ []string) error {
		return a.Cancel(ctx)
	}},
	"whoami": {path: pathHome, run: func(ctx context.Context, a execIface, _ []string) error {
		return a.WhoAmI(ctx)
	}},
	"refresh": {path: pathHome, run: func(ctx context.Context, a execIface, _ []string) error {
		return a.Refresh(ctx)
	}},
	"logout": {run: func(ctx context.Context, a execIface, _ []string) error {
		return a.Logout(ctx)
	}},
	"status": {run: func(ctx context.Context, a execIface, _ []string) error {
		return a.Status(ctx)
	}},
}

// guards maps each view to the guard protecting it. Views without an entry
// are always shown.
func guards(src guard.PhaseSource) map[string]guard.Guard {
	public := guard.NoRequireAuth{Session: src, HomePath: pathHome}
	return map[string]guard.Guard{
		pathLogin: public,
		pathCode:  public,
		pathHome:  guard.RequireAuth{Session: src, LoginPath: pathLogin},
	}
}

// runREPL starts a read–eval–print loop over reader.
//
// Every command opens a view, and the view's guard decides what happens:
//
//	Wait        the session is still restoring; nothing runs
//	Render      the command runs
//	Redirect    to the login view: sign in, then the command is replayed
//	            to the home view: the user is signed in already, whoami runs
//
// Commands:
//
//	  - help                   show available commands
//	  - login [email]          sign in and enter the code
//	  - verify [code]          submit a code
//	  - resend                 request a new code
//	  - cancel                 abandon verification
//	  - whoami                 show the signed-in user
//	  - refresh                rotate tokens
//	  - status                 show the session phase
//	  - logout                 sign out
//	  - exit | quit            leave the program
//
// Errors returned by commands are ignored here; commands print their own.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	views := guards(a)

	for {
		printlnFn(fmt.Sprintf("gophadmin%s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "help":
			printlnFn(helpText(a.Phase()))
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		cmd, ok := commands[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		dispatch(ctx, a, views, cmd, args)

		if ctx.Err() != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, a execIface, views map[string]guard.Guard, cmd command, args []string) {
	g, guarded := views[cmd.path]
	if !guarded {
		_ = cmd.run(ctx, a, args)
		return
	}

	d := g.Check(cmd.path)
	switch d.Action {
	case guard.Wait:
		printlnFn("Session is still loading, try again in a moment")

	case guard.Render:
		_ = cmd.run(ctx, a, args)

	case guard.Redirect:
		switch d.Location {
		case pathLogin:
			printlnFn("Sign in to continue")
			if err := a.Login(ctx, ""); err != nil {
				return
			}
			// replay only once the origin view admits us
			if views[d.From].Check(d.From).Action == guard.Render {
				_ = cmd.run(ctx, a, args)
			}
		case pathHome:
			printlnFn("Already signed in")
			_ = a.WhoAmI(ctx)
		}
	}
}

func helpText(p session.Phase) string {
	switch p {
	case session.PhaseAuthenticated:
		return "Available commands: whoami, refresh, status, logout, exit"
	case session.PhasePendingVerification:
		return "Available commands: verify [code], resend, cancel, status, logout, exit"
	default:
		return "Available commands: login [email], whoami, status, exit"
	}
}

// promptStatus is the session summary shown in the shell prompt.
func (a *App) promptStatus() string {
	st := a.session.State()
	switch st.Phase {
	case session.PhaseAuthenticated:
		if st.Identity != nil {
			return " (" + st.Identity.Email + ")"
		}
		return " (loading)"
	case session.PhasePendingVerification:
		return " (code)"
	default:
		return ""
	}
}

// Shell runs the interactive loop until the user exits or ctx ends. The
// resend countdown ticks in the background while it runs.
func (a *App) Shell(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.announce.Store(true)
	defer a.announce.Store(false)

	go a.session.Throttle().Run(ctx)

	a.println(titleStyle.Render("gophadmin") + " " + dimStyle.Render("(type 'help' for commands)"))
	runREPL(ctx, a, a.promptStatus, a.prompt.in)
	return nil
}
