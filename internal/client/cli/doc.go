// Package cli provides the interactive TaskHub command-line client.
//
// It walks a user through every identity flow: registration and email
// verification, login at the task application, the hub login followed by
// the SSO redemption, password reset and change, whoami and logout.
// Passwords are read from the terminal without echo.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
