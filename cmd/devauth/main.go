// Command devauth is a command line client for a devauthd server. The
// session is kept in the user's config directory between invocations.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/developerus/devauth/client"
	"github.com/developerus/devauth/client/stores/fs"
)

const usage = `usage: devauth [flags] <command> [args]

commands:
  signup <email>              create an account (password read from stdin)
  login <email>               sign in (password read from stdin)
  me                          show the signed-in user
  forgot <email>              request a password reset email
  reset <token>               set a new password from a reset token
  passwd                      change password (current and new on stdin)
  oauth <provider> <code>     complete a provider sign-in
  logout                      forget the stored session
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "devauth:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("devauth", flag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(flags.Output(), usage); flags.PrintDefaults() }
	server := flags.String("server", envOr("DEVAUTH_SERVER", "http://localhost:8080"), "server URL")
	prefix := flags.String("prefix", client.DefaultPathPrefix, "path the user routes are mounted on")
	credPath := flags.String("credentials", "", "credentials file (default: user config dir)")
	timeout := flags.Duration("timeout", 30*time.Second, "request timeout")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	store, err := fs.NewFSCredentialStore(*credPath, "devauth")
	if err != nil {
		return err
	}
	c := client.NewAuthClient(*server, store, client.WithPathPrefix(*prefix))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	in := bufio.NewScanner(stdin)
	readLine := func(prompt string) string {
		fmt.Fprint(os.Stderr, prompt)
		if in.Scan() {
			return strings.TrimRight(in.Text(), "\r\n")
		}
		return ""
	}

	cmd, rest := flags.Arg(0), flags.Args()[1:]
	need := func(n int) error {
		if len(rest) != n {
			return fmt.Errorf("%s: expected %d argument(s)", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "signup", "login":
		if err := need(1); err != nil {
			return err
		}
		password := readLine("Password: ")
		var user *client.User
		if cmd == "signup" {
			user, err = c.Signup(ctx, rest[0], password)
		} else {
			user, err = c.Login(ctx, rest[0], password)
		}
		if err != nil {
			return err
		}
		return printJSON(stdout, user)

	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, user)

	case "forgot":
		if err := need(1); err != nil {
			return err
		}
		if err := c.ForgotPassword(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Reset link sent.")
		return nil

	case "reset":
		if err := need(1); err != nil {
			return err
		}
		user, err := c.ResetPassword(ctx, rest[0], readLine("New password: "))
		if err != nil {
			return err
		}
		return printJSON(stdout, user)

	case "passwd":
		current := readLine("Current password: ")
		next := readLine("New password: ")
		if err := c.ChangePassword(ctx, current, next); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Password changed.")
		return nil

	case "oauth":
		if err := need(2); err != nil {
			return err
		}
		user, err := c.CompleteOAuth(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		return printJSON(stdout, user)

	case "logout":
		return c.Logout()

	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
