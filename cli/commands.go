package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brunoscheufler/notekeeper/render"
	"github.com/brunoscheufler/notekeeper/state"
	"github.com/brunoscheufler/notekeeper/store"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in, run the login command first")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("invalid usage")
)

// Env is what a command needs to run.
type Env struct {
	Sessions *state.SessionStore
	Notes    *state.NotesStore
	Printer  *render.Printer
	Markdown *render.Markdown
	In       io.Reader
	Out      io.Writer
}

type Command struct {
	Name    string
	Usage   string
	Summary string
	Run     func(ctx context.Context, env *Env, args []string) error
}

func Commands() []Command {
	return []Command{
		{"register", "register -name NAME -email EMAIL [-password PASSWORD]", "Create an account and sign in", runRegister},
		{"login", "login -email EMAIL [-password PASSWORD]", "Sign in", runLogin},
		{"logout", "logout", "Sign out and drop the local cache", runLogout},
		{"whoami", "whoami", "Show the signed in user", runWhoami},
		{"list", "list [-cached]", "List notes", runList},
		{"show", "show [-html] ID", "Show one note", runShow},
		{"add", "add -title TITLE [-content TEXT|-]", "Create a note", runAdd},
		{"edit", "edit [-title TITLE] [-content TEXT|-] ID", "Change a note", runEdit},
		{"delete", "delete ID", "Delete a note", runDelete},
	}
}

// Dispatch runs the command named by args[0].
func Dispatch(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", ErrUsage)
	}
	for _, cmd := range Commands() {
		if cmd.Name == args[0] {
			return cmd.Run(ctx, env, args[1:])
		}
	}
	return fmt.Errorf("%w %q", ErrUnknownCommand, args[0])
}

// PrintUsage writes the command overview to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: notekeeper [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range Commands() {
		fmt.Fprintf(w, "  %-52s %s\n", cmd.Usage, cmd.Summary)
	}
	fmt.Fprintf(w, "  %-52s %s\n", "tui", "Open the interactive UI (default)")
	fmt.Fprintf(w, "  %-52s %s\n", "serve [-addr ADDR]", "Run a development backend")
}

func newFlagSet(name string, env *Env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Out)
	return fs
}

// readSecret returns value, or the first line of env.In if value is empty.
func readSecret(env *Env, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(env.Out, "Password: ")
	line, err := bufio.NewReader(env.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(env.Out)
	return strings.TrimRight(line, "\r\n"), nil
}

// readContent resolves "-" to the whole of env.In.
func readContent(env *Env, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	data, err := io.ReadAll(env.In)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return string(data), nil
}

func parseID(fs *flag.FlagSet) (int64, error) {
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("%w: expected one note id", ErrUsage)
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid note id %q", ErrUsage, fs.Arg(0))
	}
	return id, nil
}

func requireSession(env *Env) error {
	if !env.Sessions.Authenticated() {
		return ErrNotLoggedIn
	}
	return nil
}

func runRegister(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("register", env)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (read from stdin if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *email == "" {
		return fmt.Errorf("%w: -name and -email are required", ErrUsage)
	}

	secret, err := readSecret(env, *password)
	if err != nil {
		return err
	}
	if err := env.Sessions.Register(ctx, *name, *email, secret); err != nil {
		return err
	}

	session, _ := env.Sessions.Session()
	env.Printer.Success("Account created.")
	env.Printer.Session(session)
	return nil
}

func runLogin(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("login", env)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (read from stdin if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("%w: -email is required", ErrUsage)
	}

	secret, err := readSecret(env, *password)
	if err != nil {
		return err
	}
	if err := env.Sessions.Login(ctx, *email, secret); err != nil {
		return err
	}

	session, _ := env.Sessions.Session()
	env.Printer.Session(session)
	return nil
}

func runLogout(ctx context.Context, env *Env, _ []string) error {
	if err := env.Sessions.Logout(ctx); err != nil {
		return err
	}
	env.Printer.Success("Logged out.")
	return nil
}

func runWhoami(_ context.Context, env *Env, _ []string) error {
	session, ok := env.Sessions.Session()
	if !ok {
		return ErrNotLoggedIn
	}
	env.Printer.Session(session)
	return nil
}

func runList(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("list", env)
	cached := fs.Bool("cached", false, "Print the local cache without contacting the backend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireSession(env); err != nil {
		return err
	}

	if !*cached {
		if err := env.Notes.FetchNotes(ctx); err != nil {
			return err
		}
	}
	env.Printer.Notes(env.Notes.Notes())
	return nil
}

// lookup finds a note in the cache, fetching once if it is missing.
func lookup(ctx context.Context, env *Env, id int64) (store.Note, error) {
	if note, ok := env.Notes.Note(id); ok {
		return note, nil
	}
	if err := env.Notes.FetchNotes(ctx); err != nil {
		return store.Note{}, err
	}
	if note, ok := env.Notes.Note(id); ok {
		return note, nil
	}
	return store.Note{}, fmt.Errorf("note %d not found", id)
}

func runShow(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("show", env)
	asHTML := fs.Bool("html", false, "Render the content as HTML")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}
	if err := requireSession(env); err != nil {
		return err
	}

	note, err := lookup(ctx, env, id)
	if err != nil {
		return err
	}

	if !*asHTML {
		env.Printer.Note(note)
		return nil
	}
	html, err := env.Markdown.HTML(note.Content)
	if err != nil {
		return err
	}
	fmt.Fprint(env.Out, html)
	return nil
}

func runAdd(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("add", env)
	title := fs.String("title", "", "Note title")
	content := fs.String("content", "", "Note content, - reads stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireSession(env); err != nil {
		return err
	}

	body, err := readContent(env, *content)
	if err != nil {
		return err
	}

	note, err := env.Notes.AddNote(ctx, *title, body)
	if err != nil {
		return err
	}
	env.Printer.Success(state.CreatedMessage)
	env.Printer.Notes([]store.Note{note})
	return nil
}

func runEdit(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("edit", env)
	title := fs.String("title", "", "New title")
	content := fs.String("content", "", "New content, - reads stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}
	if err := requireSession(env); err != nil {
		return err
	}

	current, err := lookup(ctx, env, id)
	if err != nil {
		return err
	}

	newTitle, newContent := current.Title, current.Content
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["title"] {
		newTitle = *title
	}
	if set["content"] {
		if newContent, err = readContent(env, *content); err != nil {
			return err
		}
	}

	note, err := env.Notes.UpdateNote(ctx, id, store.EditPatch(newTitle, newContent))
	if err != nil {
		return err
	}
	env.Printer.Success(state.UpdatedMessage)
	env.Printer.Notes([]store.Note{note})
	return nil
}

func runDelete(ctx context.Context, env *Env, args []string) error {
	fs := newFlagSet("delete", env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs)
	if err != nil {
		return err
	}
	if err := requireSession(env); err != nil {
		return err
	}

	if err := env.Notes.DeleteNote(ctx, id); err != nil {
		return err
	}
	env.Printer.Success(state.DeletedMessage)
	return nil
}
