package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. App implements it;
// tests use a stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Verify(ctx context.Context) error
	Resend(ctx context.Context) error
	Login(ctx context.Context) error
	HubLogin(ctx context.Context) error
	Forgot(ctx context.Context) error
	Reset(ctx context.Context) error
	Whoami(ctx context.Context) error
	Passwd(ctx context.Context) error
	Logout(ctx context.Context) error
	DeleteUser(ctx context.Context) error
}

const (
	helpAnonymous = "Available commands: register, verify, resend, login, hub-login, forgot, reset, exit"
	helpSignedIn  = "Available commands: whoami, passwd, logout, delete-user, exit"
)

// runREPL reads one command per line from reader and dispatches it to a.
// Errors returned by commands are printed and the loop goes on. It returns
// on EOF, on "exit" or "quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("taskhub %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch parts[0] {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpSignedIn)
			} else {
				printlnFn(helpAnonymous)
			}
		case "register":
			cmdErr = a.Register(ctx)
		case "verify":
			cmdErr = a.Verify(ctx)
		case "resend":
			cmdErr = a.Resend(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "hub-login":
			cmdErr = a.HubLogin(ctx)
		case "forgot":
			cmdErr = a.Forgot(ctx)
		case "reset":
			cmdErr = a.Reset(ctx)
		case "whoami":
			cmdErr = a.Whoami(ctx)
		case "passwd":
			cmdErr = a.Passwd(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "delete-user":
			cmdErr = a.DeleteUser(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", parts[0])
		}

		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
	}
}
