package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	store      *user.Store
	academies  academy.Lister
	notifier   *academy.Notifier
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  login -email EMAIL - sign in; the password is prompted")
	_, _ = fmt.Fprintln(cli.out, "  logout - sign out")
	_, _ = fmt.Fprintln(cli.out, "  whoami - show the signed-in user")
	_, _ = fmt.Fprintln(cli.out, "  academies [-search TERM] [-sort name|owner_name|expiry_date] [-desc] - list academies (super admin)")
	_, _ = fmt.Fprintln(cli.out, "  notify-expiring - email admins of expiring academies (super admin)")
	_, _ = fmt.Fprintln(cli.out, "  reset-password -email EMAIL - send a password reset email")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, redo, up-to V, down-to V) on the sessions database")
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	loginCmd := flag.NewFlagSet("login", flag.ContinueOnError)
	loginEmail := loginCmd.String("email", "", "The user's email. The password will be prompted next.")

	academiesCmd := flag.NewFlagSet("academies", flag.ContinueOnError)
	academiesSearch := academiesCmd.String("search", "", "Only list academies whose name, owner name or admin email contain TERM.")
	academiesSort := academiesCmd.String("sort", string(academy.SortByName), "The column to sort by.")
	academiesDesc := academiesCmd.Bool("desc", false, "Sort in descending order.")

	resetPasswordCmd := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The email of the account to recover.")

	for _, fs := range []*flag.FlagSet{loginCmd, academiesCmd, resetPasswordCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		return cli.migrate(ctx, args[2:])
	case "login", "logout", "whoami", "academies", "notify-expiring", "reset-password":
	default:
		cli.printUsage()
		return errHelp
	}

	if err := cli.store.Init(ctx); err != nil {
		return errors.Wrap(err, "restoring session")
	}

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *loginEmail == "" {
			loginCmd.Usage()
			return errHelp
		}
		cli.printf("Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		cli.printf("\n")
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginEmail, string(pwd))

	case "logout":
		return cli.logout(ctx)

	case "whoami":
		return cli.whoami()

	case "academies":
		if err := academiesCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		query := academy.TableQuery{
			Search:    *academiesSearch,
			Sort:      academy.ParseSortField(*academiesSort),
			Direction: academy.Ascending,
		}
		if *academiesDesc {
			query.Direction = academy.Descending
		}
		return cli.listAcademies(ctx, query)

	case "notify-expiring":
		return cli.notifyExpiring(ctx)

	default: // reset-password
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail)
	}
}

// requireSuperAdmin returns the access token of the signed-in super admin.
func (cli *commandLine) requireSuperAdmin() (string, error) {
	st := cli.store.State()
	if st.Token == "" {
		return "", core.ErrUnauthorized
	}
	if !st.User.IsSuperAdmin() {
		return "", core.ErrForbidden
	}
	return st.Token, nil
}

// forgetRejected drops the stored session when the backend rejected its token.
func (cli *commandLine) forgetRejected(err error) error {
	if core.IsUnauthorized(err) {
		if fErr := cli.store.Forget(); fErr != nil {
			cli.printf("could not forget the rejected session: %v\n", fErr)
		}
	}
	return err
}

// describeError renders err for a terminal, listing field errors one per line.
func (cli *commandLine) describeError(err error) string {
	switch cause := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		return describeFields(core.TranslateValidationErrors(cause, cli.translator))
	case *core.ValidationError:
		if len(cause.Fields) == 0 {
			return cause.Error()
		}
		flds := make(map[string]string, len(cause.Fields))
		for _, f := range cause.Fields {
			flds[f.Field] = f.Error
		}
		return describeFields(flds)
	case *core.RejectionError:
		return cause.Message
	case *core.TransportError:
		return fmt.Sprintf("%s is unavailable, please retry", cause.Service)
	}
	if core.IsUnauthorized(err) {
		return "not signed in, run `login` first"
	}
	return err.Error()
}

func describeFields(flds map[string]string) string {
	names := make([]string, 0, len(flds))
	for name := range flds {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := "invalid input:"
	for _, name := range names {
		msg += fmt.Sprintf("\n  %s: %s", name, flds[name])
	}
	return msg
}
