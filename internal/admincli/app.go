package admincli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/identity"
	"github.com/google/uuid"
)

// UserAdmin is the subset of *goShield.Admin the commands drive.
type UserAdmin interface {
	CreateUser(ctx context.Context, username, email, plaintext string) (*identity.User, error)
	FindUser(ctx context.Context, username, email string) (*identity.User, error)
	ListUsers(ctx context.Context, emailFilter string) ([]identity.User, error)
	Activate(ctx context.Context, userID uuid.UUID) error
	Deactivate(ctx context.Context, userID uuid.UUID) error
	ChangeUsername(ctx context.Context, userID uuid.UUID, username string) error
	ChangeEmail(ctx context.Context, userID uuid.UUID, email string) error
	SetPassword(ctx context.Context, userID uuid.UUID, plaintext string) error
	AddGroup(ctx context.Context, userID uuid.UUID, group string) error
	RemoveGroup(ctx context.Context, userID uuid.UUID, group string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	GenerateAccessToken(ctx context.Context, userID uuid.UUID, name string, scopes []string, ttl time.Duration) (string, *goShield.AccessToken, error)
}

var _ UserAdmin = (*goShield.Admin)(nil)

// App dispatches subcommands against a UserAdmin.
type App struct {
	admin UserAdmin
	out   io.Writer
	p     *prompter
}

// New builds an App reading answers from in and writing to out. When
// password is nil, passwords are read as plain lines from in.
func New(admin UserAdmin, in io.Reader, out io.Writer, password PasswordReader) *App {
	return &App{
		admin: admin,
		out:   out,
		p:     &prompter{in: bufio.NewReader(in), out: out, password: password},
	}
}

type command struct {
	usage string
	run   func(a *App, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"create":      {"create -n <username> -e <email>", (*App).create},
	"activate":    {"activate -n <username> | -e <email>", (*App).activate},
	"deactivate":  {"deactivate -n <username> | -e <email>", (*App).deactivate},
	"changename":  {"changename -n <username> --new-name <username>", (*App).changeName},
	"changeemail": {"changeemail -n <username> --new-email <email>", (*App).changeEmail},
	"delete":      {"delete -n <username> | -e <email>", (*App).delete},
	"password":    {"password -n <username> | -e <email>", (*App).password},
	"list":        {"list [-n <username>] [-e <email>]", (*App).list},
	"addgroup":    {"addgroup -n <username> -g <group>", (*App).addGroup},
	"removegroup": {"removegroup -n <username> -g <group>", (*App).removeGroup},
	"token":       {"token -n <username> [--name <name>] [--scope <scope,...>] [--ttl <duration>]", (*App).token},
}

// Run executes args[0] with the remaining flags. A cancelled confirmation
// is reported and returns nil.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	err := cmd.run(a, ctx, args[1:])
	if errors.Is(err, ErrCancelled) {
		fmt.Fprintf(a.out, "%s cancelled\n", args[0])
		return nil
	}
	return err
}

func (a *App) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(a.out, "Usage: goshield [flags] <command> [options]")
	for _, name := range names {
		fmt.Fprintf(a.out, "  %s\n", commands[name].usage)
	}
}

// userFlags holds the selectors shared by most commands.
type userFlags struct {
	username string
	email    string
}

func (a *App) flags(name string, uf *userFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	fs.StringVar(&uf.username, "n", "", "username")
	fs.StringVar(&uf.email, "e", "", "email")
	return fs
}

// resolve finds the target user, asking for a username when neither
// selector was given.
func (a *App) resolve(ctx context.Context, uf userFlags) (*identity.User, error) {
	if uf.username == "" && uf.email == "" {
		name, err := a.p.required("Username : ")
		if err != nil {
			return nil, err
		}
		uf.username = name
	}
	u, err := a.admin.FindUser(ctx, uf.username, uf.email)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, errors.New("user doesn't exist")
	}
	return u, err
}

func (a *App) create(ctx context.Context, args []string) error {
	var uf userFlags
	if err := a.flags("create", &uf).Parse(args); err != nil {
		return err
	}
	var err error
	if uf.username == "" {
		if uf.username, err = a.p.required("Username : "); err != nil {
			return err
		}
	}
	if uf.email == "" {
		if uf.email, err = a.p.required("Email : "); err != nil {
			return err
		}
	}
	pw, err := a.p.newPassword()
	if err != nil {
		return err
	}
	if _, err := a.admin.CreateUser(ctx, uf.username, uf.email, pw); err != nil {
		return fmt.Errorf("user creation failed: %w", err)
	}
	fmt.Fprintf(a.out, "User %q created\n", uf.username)
	return nil
}

func (a *App) activate(ctx context.Context, args []string) error {
	return a.setActive(ctx, "activate", args, true)
}

func (a *App) deactivate(ctx context.Context, args []string) error {
	return a.setActive(ctx, "deactivate", args, false)
}

func (a *App) setActive(ctx context.Context, name string, args []string, active bool) error {
	var uf userFlags
	if err := a.flags(name, &uf).Parse(args); err != nil {
		return err
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	verb := "Activate"
	if !active {
		verb = "Deactivate"
	}
	if err := a.p.confirm(fmt.Sprintf("%s the user %s ?", verb, u.Username)); err != nil {
		return err
	}
	if active {
		err = a.admin.Activate(ctx, u.ID)
	} else {
		err = a.admin.Deactivate(ctx, u.ID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %q %sd\n", u.Username, name)
	return nil
}

func (a *App) changeName(ctx context.Context, args []string) error {
	var (
		uf      userFlags
		newName string
	)
	fs := a.flags("changename", &uf)
	fs.StringVar(&newName, "new-name", "", "new username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	if newName == "" {
		if newName, err = a.p.required("New username : "); err != nil {
			return err
		}
	}
	if err := a.p.confirm(fmt.Sprintf("Change username %q to %q ?", u.Username, newName)); err != nil {
		return err
	}
	if err := a.admin.ChangeUsername(ctx, u.ID, newName); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Username %q changed to %q\n", u.Username, newName)
	return nil
}

func (a *App) changeEmail(ctx context.Context, args []string) error {
	var (
		uf       userFlags
		newEmail string
	)
	fs := a.flags("changeemail", &uf)
	fs.StringVar(&newEmail, "new-email", "", "new email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	if newEmail == "" {
		if newEmail, err = a.p.required("New email : "); err != nil {
			return err
		}
	}
	if err := a.p.confirm(fmt.Sprintf("Change email for %q to %s ?", u.Username, newEmail)); err != nil {
		return err
	}
	if err := a.admin.ChangeEmail(ctx, u.ID, newEmail); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Email for %q changed to %s\n", u.Username, newEmail)
	return nil
}

func (a *App) delete(ctx context.Context, args []string) error {
	var uf userFlags
	if err := a.flags("delete", &uf).Parse(args); err != nil {
		return err
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	if err := a.p.confirm(fmt.Sprintf("Delete the user %s ?", u.Username)); err != nil {
		return err
	}
	if err := a.admin.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %q deleted\n", u.Username)
	return nil
}

func (a *App) password(ctx context.Context, args []string) error {
	var uf userFlags
	if err := a.flags("password", &uf).Parse(args); err != nil {
		return err
	}
	if uf.username == "" && uf.email == "" {
		which, err := a.p.line("Which do you use? [n/e]: ")
		if err != nil {
			return err
		}
		if strings.EqualFold(which, "e") {
			if uf.email, err = a.p.required("Email : "); err != nil {
				return err
			}
		} else if uf.username, err = a.p.required("Username : "); err != nil {
			return err
		}
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	if err := a.p.confirm(fmt.Sprintf("Set the password for %q ?", u.Username)); err != nil {
		return err
	}
	pw, err := a.p.newPassword()
	if err != nil {
		return err
	}
	if err := a.admin.SetPassword(ctx, u.ID, pw); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Password for %q set\n", u.Username)
	return nil
}

func (a *App) list(ctx context.Context, args []string) error {
	var uf userFlags
	if err := a.flags("list", &uf).Parse(args); err != nil {
		return err
	}
	users, err := a.admin.ListUsers(ctx, uf.email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Id\tUser")
	for _, u := range users {
		if uf.username != "" && !strings.Contains(u.Username, uf.username) {
			continue
		}
		fmt.Fprintf(a.out, "%s\t%s (%s)\n", u.ID, u.Username, u.Email)
	}
	return nil
}

func (a *App) addGroup(ctx context.Context, args []string) error {
	return a.changeGroup(ctx, "addgroup", args, true)
}

func (a *App) removeGroup(ctx context.Context, args []string) error {
	return a.changeGroup(ctx, "removegroup", args, false)
}

func (a *App) changeGroup(ctx context.Context, name string, args []string, add bool) error {
	var (
		uf    userFlags
		group string
	)
	fs := a.flags(name, &uf)
	fs.StringVar(&group, "g", "", "group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	if group == "" {
		if group, err = a.p.required("Group : "); err != nil {
			return err
		}
	}

	if add {
		if err := a.p.confirm(fmt.Sprintf("Add the user %q to the group %q ?", u.Username, group)); err != nil {
			return err
		}
		if err := a.admin.AddGroup(ctx, u.ID, group); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "User %q added to group %q\n", u.Username, group)
		return nil
	}

	if !u.InGroup(group) {
		return fmt.Errorf("user %q is not in group %q", u.Username, group)
	}
	if err := a.p.confirm(fmt.Sprintf("Remove the user %q from the group %q ?", u.Username, group)); err != nil {
		return err
	}
	if err := a.admin.RemoveGroup(ctx, u.ID, group); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User %q removed from group %q\n", u.Username, group)
	return nil
}

// token prints a new access token. The raw value is shown only here.
func (a *App) token(ctx context.Context, args []string) error {
	var (
		uf     userFlags
		name   string
		scopes string
		ttl    time.Duration
	)
	fs := a.flags("token", &uf)
	fs.StringVar(&name, "name", "", "token name")
	fs.StringVar(&scopes, "scope", "", "comma separated scopes")
	fs.DurationVar(&ttl, "ttl", 0, "token lifetime, 0 uses the configured default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := a.resolve(ctx, uf)
	if err != nil {
		return err
	}
	var list []string
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	raw, meta, err := a.admin.GenerateAccessToken(ctx, u.ID, name, list, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Token for %q (%s): %s\n", u.Username, meta.Selector, raw)
	return nil
}
