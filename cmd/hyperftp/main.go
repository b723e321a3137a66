// Command hyperftp is an interactive FTP/FTPS client built on the hyperftp
// package.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/hyperftp/hyperftp"
)

var (
	errColor  = color.New(color.FgRed)
	okColor   = color.New(color.FgGreen)
	infoColor = color.New(color.FgCyan)
)

// app holds the interactive client state shared by the executor and the
// completer.
type app struct {
	session *hyperftp.Session
	logger  *slog.Logger
}

func main() {
	verbose := flag.Bool("v", false, "log protocol exchanges to stderr")
	flag.Parse()

	a := &app{}
	if *verbose {
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	infoColor.Println("hyperftp interactive client. Type 'help' for commands.")

	p := prompt.New(
		a.execute,
		a.complete,
		prompt.OptionTitle("hyperftp"),
		prompt.OptionLivePrefix(a.prefix),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionCompletionWordSeparator(" "),
	)
	p.Run()
}

func (a *app) prefix() (string, bool) {
	if a.session == nil || a.session.Phase() == hyperftp.Disconnected {
		return "ftp> ", true
	}
	profile := a.session.Profile()
	return fmt.Sprintf("%s:%s> ", profile.Host, a.session.RemoteDir()), true
}

var commands = []prompt.Suggest{
	{Text: "open", Description: "Connect: open host [port] [-secure] [-anonymous] [-active]"},
	{Text: "close", Description: "Disconnect from the server"},
	{Text: "ls", Description: "List remote directory"},
	{Text: "cd", Description: "Change remote directory"},
	{Text: "pwd", Description: "Show remote directory"},
	{Text: "get", Description: "Download: get remote [local]"},
	{Text: "put", Description: "Upload: put local [remote]"},
	{Text: "rm", Description: "Delete remote file"},
	{Text: "mkdir", Description: "Create remote directory"},
	{Text: "rmdir", Description: "Remove remote directory"},
	{Text: "rename", Description: "Rename: rename from to"},
	{Text: "size", Description: "Show remote file size"},
	{Text: "noop", Description: "Ping the server"},
	{Text: "help", Description: "Show help"},
	{Text: "exit", Description: "Quit"},
}

func (a *app) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if strings.Contains(text, " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

func (a *app) execute(input string) {
	args := strings.Fields(input)
	if len(args) == 0 {
		return
	}

	cmd, args := args[0], args[1:]

	var err error
	switch cmd {
	case "open":
		err = a.open(args)
	case "close":
		err = a.close()
	case "ls":
		err = a.list(args)
	case "cd":
		err = a.requireArgs(args, 1, func() error { return a.session.ChangeDir(args[0]) })
	case "pwd":
		err = a.pwd()
	case "get":
		err = a.get(args)
	case "put":
		err = a.put(args)
	case "rm":
		err = a.requireArgs(args, 1, func() error { return a.session.Delete(args[0]) })
	case "mkdir":
		err = a.requireArgs(args, 1, func() error { return a.session.MakeDir(args[0]) })
	case "rmdir":
		err = a.requireArgs(args, 1, func() error { return a.session.RemoveDir(args[0]) })
	case "rename":
		err = a.requireArgs(args, 2, func() error { return a.session.Rename(args[0], args[1]) })
	case "size":
		err = a.size(args)
	case "noop":
		err = a.requireArgs(args, 0, func() error { return a.session.Noop() })
	case "help":
		a.help()
	case "exit", "quit":
		if a.session != nil {
			_ = a.session.Disconnect()
		}
		okColor.Println("Bye.")
		os.Exit(0)
	default:
		err = fmt.Errorf("unknown command %q, try 'help'", cmd)
	}

	if err != nil {
		errColor.Fprintf(os.Stderr, "%v\n", err)
	}
}

// requireArgs guards commands that need an open session and a fixed number
// of arguments.
func (a *app) requireArgs(args []string, n int, fn func() error) error {
	if a.session == nil {
		return fmt.Errorf("not connected, use 'open' first")
	}
	if len(args) != n {
		return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	if err := fn(); err != nil {
		return err
	}
	okColor.Println("OK")
	return nil
}

func (a *app) open(args []string) error {
	if a.session != nil && a.session.Phase() != hyperftp.Disconnected {
		return fmt.Errorf("already connected, 'close' first")
	}

	profile := hyperftp.ConnectionProfile{Port: 21, PassiveMode: true}
	var active bool

	for _, arg := range args {
		switch {
		case arg == "-secure":
			profile.Secure = true
		case arg == "-anonymous":
			profile.Anonymous = true
		case arg == "-active":
			active = true
		case profile.Host == "":
			profile.Host = arg
		default:
			port, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("invalid port %q", arg)
			}
			profile.Port = port
		}
	}

	if profile.Host == "" {
		return fmt.Errorf("usage: open host [port] [-secure] [-anonymous] [-active]")
	}

	if !profile.Anonymous {
		user, pass, err := promptCredentials()
		if err != nil {
			return err
		}
		profile.Username, profile.Password = user, pass
	}

	opts := []hyperftp.Option{hyperftp.WithLogger(a.logger)}
	if active {
		opts = append(opts, hyperftp.WithActiveMode())
	}

	session, err := hyperftp.NewSession(profile, opts...)
	if err != nil {
		return err
	}

	if err := session.Connect(); err != nil {
		return err
	}

	a.session = session
	if welcome := session.Welcome(); welcome != "" {
		infoColor.Println(welcome)
	}
	okColor.Printf("Connected to %s\n", profile.Host)
	return nil
}

func promptCredentials() (user, pass string, err error) {
	fmt.Print("Username: ")
	if _, err := fmt.Scanln(&user); err != nil {
		return "", "", fmt.Errorf("failed to read username: %w", err)
	}

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}

	return user, string(raw), nil
}

func (a *app) close() error {
	if a.session == nil {
		return nil
	}
	if err := a.session.Disconnect(); err != nil {
		return err
	}
	okColor.Println("Disconnected.")
	return nil
}

func (a *app) pwd() error {
	if a.session == nil {
		return fmt.Errorf("not connected")
	}
	dir, err := a.session.CurrentDir()
	if err != nil {
		return err
	}
	fmt.Println(dir)
	return nil
}

func (a *app) list(args []string) error {
	if a.session == nil {
		return fmt.Errorf("not connected")
	}

	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}

	entries, err := a.session.List(dir)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Type", "Size", "Modified")
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		} else if e.Target != "" {
			kind = "link"
		}

		size := ""
		if e.Size >= 0 {
			size = humanSize(e.Size)
		}

		modified := ""
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Format("2006-01-02 15:04")
		}

		table.Append([]string{e.Name, kind, size, modified})
	}
	if err := table.Render(); err != nil {
		return err
	}

	infoColor.Printf("%d entries\n", len(entries))
	return nil
}

func (a *app) size(args []string) error {
	if a.session == nil {
		return fmt.Errorf("not connected")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: size remote-file")
	}

	size, err := a.session.Size(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d bytes)\n", humanSize(size), size)
	return nil
}

func (a *app) get(args []string) error {
	if a.session == nil {
		return fmt.Errorf("not connected")
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: get remote-file [local-file]")
	}

	remote := args[0]
	local := path.Base(remote)
	if len(args) == 2 {
		local = args[1]
	}

	task, err := a.session.Download(remote, local)
	if err != nil {
		return err
	}
	return a.watch(task)
}

func (a *app) put(args []string) error {
	if a.session == nil {
		return fmt.Errorf("not connected")
	}
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: put local-file [remote-file]")
	}

	local := args[0]
	remote := path.Base(local)
	if len(args) == 2 {
		remote = args[1]
	}

	task, err := a.session.Upload(local, remote)
	if err != nil {
		return err
	}
	return a.watch(task)
}

// watch renders a one-line progress display until the task finishes.
func (a *app) watch(task *hyperftp.TransferTask) error {
	for snap := range task.Progress() {
		if snap.Total > 0 {
			fmt.Printf("\r%s %s: %s / %s (%d%%)   ",
				snap.Direction, snap.RemotePath,
				humanSize(snap.Transferred), humanSize(snap.Total),
				snap.Transferred*100/snap.Total)
		} else {
			fmt.Printf("\r%s %s: %s   ",
				snap.Direction, snap.RemotePath, humanSize(snap.Transferred))
		}
	}
	fmt.Println()

	if err := task.Wait(); err != nil {
		return err
	}

	snap := task.Snapshot()
	okColor.Printf("Transferred %s\n", humanSize(snap.Transferred))
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (a *app) help() {
	for _, c := range commands {
		fmt.Printf("  %-8s %s\n", c.Text, c.Description)
	}
}
