package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/gophadmin/internal/client/config"
	"github.com/dmitrijs2005/gophadmin/internal/client/session"
)

// appFunc is a command body running against an initialized App.
type appFunc func(ctx context.Context, a *App, args []string) error

// rootCommand owns the App created lazily by whichever subcommand runs.
type rootCommand struct {
	in  io.Reader
	out io.Writer
	app *App
}

// withApp loads the configuration from cmd's flags, builds the App and
// restores the session before calling fn. autoBootstrap loads the profile in
// the background as soon as the session is authenticated.
func (r *rootCommand) withApp(autoBootstrap bool, fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}

		app, err := NewApp(ctx, cfg, r.in, r.out, session.WithAutoBootstrap(autoBootstrap))
		if err != nil {
			return err
		}
		r.app = app

		if err := app.Init(ctx); err != nil {
			var se *session.Error
			if !errors.As(err, &se) {
				return err
			}
			// the stored session was rejected; carry on signed out
			_ = app.fail(err)
		}
		return fn(ctx, app, args)
	}
}

func (r *rootCommand) close() error {
	if r.app == nil {
		return nil
	}
	return r.app.Close()
}

func newRootCommand(in io.Reader, out io.Writer) (*cobra.Command, *rootCommand) {
	r := &rootCommand{in: in, out: out}

	root := &cobra.Command{
		Use:           "gophadmin",
		Short:         "Sign in to the admin console and manage the session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindFlags(root.PersistentFlags())

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, then enter the emailed code",
		Args:  cobra.NoArgs,
	}
	email := loginCmd.Flags().StringP("email", "e", "", "account email (prompted when empty)")
	loginCmd.RunE = r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
		return a.Login(ctx, *email)
	})

	root.AddCommand(
		loginCmd,
		&cobra.Command{
			Use:   "verify [code]",
			Short: "Submit the one-time code",
			Args:  cobra.MaximumNArgs(1),
			RunE: r.withApp(false, func(ctx context.Context, a *App, args []string) error {
				return a.Verify(ctx, firstArg(args))
			}),
		},
		&cobra.Command{
			Use:   "resend",
			Short: "Request a new one-time code",
			Args:  cobra.NoArgs,
			RunE: r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.Resend(ctx)
			}),
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Abandon a pending verification",
			Args:  cobra.NoArgs,
			RunE: r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.Cancel(ctx)
			}),
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Sign out and forget stored tokens",
			Args:  cobra.NoArgs,
			RunE: r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.Logout(ctx)
			}),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed-in user and their authorities",
			Args:  cobra.NoArgs,
			RunE: r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.WhoAmI(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the session phase",
			Args:  cobra.NoArgs,
			RunE: r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.Status(ctx)
			}),
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Rotate the access and refresh tokens",
			Args:  cobra.NoArgs,
			RunE: r.withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.Refresh(ctx)
			}),
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Start the interactive shell",
			Args:  cobra.NoArgs,
			RunE: r.withApp(true, func(ctx context.Context, a *App, _ []string) error {
				return a.Shell(ctx)
			}),
		},
	)

	return root, r
}

// Execute runs the command line in args. Errors the commands already showed
// are not printed again; the caller only needs the exit status.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	root, r := newRootCommand(in, out)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(errOut, errStyle.Render("Error: "+err.Error()))
		}
	}
	return errors.Join(err, r.close())
}
