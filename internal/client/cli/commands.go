package cli

import (
	"context"
	"errors"
	"fmt"
)

var errPasswordMismatch = errors.New("passwords do not match")

func (a *App) ask(prompt string) (string, error) {
	return GetSimpleText(a.reader, prompt, a.out)
}

// askNewPassword reads a password twice.
func (a *App) askNewPassword(prompt string) (string, error) {
	pw, err := GetPassword(a.out, prompt)
	if err != nil {
		return "", err
	}
	again, err := GetPassword(a.out, "Repeat "+prompt)
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errPasswordMismatch
	}
	return pw, nil
}

func (a *App) say(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *App) Register(ctx context.Context) error {
	name, err := a.ask("-Enter name")
	if err != nil {
		return err
	}
	email, err := a.ask("-Enter email")
	if err != nil {
		return err
	}
	password, err := a.askNewPassword("Password")
	if err != nil {
		return err
	}

	resp, err := a.client.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	a.say("%s", resp.Message)
	return nil
}

func (a *App) Verify(ctx context.Context) error {
	token, err := a.ask("-Enter the token from the verification email")
	if err != nil {
		return err
	}
	msg, err := a.client.VerifyEmail(ctx, token)
	if err != nil {
		return err
	}
	a.say("%s", msg)
	return nil
}

func (a *App) Resend(ctx context.Context) error {
	email, err := a.ask("-Enter email")
	if err != nil {
		return err
	}
	msg, err := a.client.ResendVerification(ctx, email)
	if err != nil {
		return err
	}
	a.say("%s", msg)
	return nil
}

func (a *App) credentials() (string, string, error) {
	email, err := a.ask("-Enter email")
	if err != nil {
		return "", "", err
	}
	password, err := GetPassword(a.out, "Password")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

func (a *App) Login(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	u, err := a.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	a.userName = u.Name
	a.say("Logged in as %s", u.Name)
	return nil
}

// HubLogin signs in at the hub and redeems the SSO token right away, the
// way the task application does after the redirect.
func (a *App) HubLogin(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	hub, err := a.client.HubLogin(ctx, email, password)
	if err != nil {
		return err
	}
	if !hub.Authenticated {
		a.say("%s", hub.Message)
		return nil
	}

	u, err := a.client.RedeemSSO(ctx, hub.SSOToken)
	if err != nil {
		return err
	}
	a.userName = u.Name
	a.say("%s Signed in to the task application as %s", hub.Message, u.Name)
	return nil
}

func (a *App) Forgot(ctx context.Context) error {
	email, err := a.ask("-Enter email")
	if err != nil {
		return err
	}
	msg, err := a.client.RequestPasswordReset(ctx, email)
	if err != nil {
		return err
	}
	a.say("%s", msg)
	return nil
}

func (a *App) Reset(ctx context.Context) error {
	token, err := a.ask("-Enter the token from the reset email")
	if err != nil {
		return err
	}
	password, err := a.askNewPassword("New password")
	if err != nil {
		return err
	}
	msg, err := a.client.ResetPassword(ctx, token, password)
	if err != nil {
		return err
	}
	a.say("%s", msg)
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	u, err := a.client.Whoami(ctx)
	if err != nil {
		return err
	}
	a.say("%s <%s> id=%s role=%s verified=%t", u.Name, u.Email, u.ID, u.Role, u.EmailVerified)
	return nil
}

func (a *App) Passwd(ctx context.Context) error {
	current, err := GetPassword(a.out, "Current password")
	if err != nil {
		return err
	}
	next, err := a.askNewPassword("New password")
	if err != nil {
		return err
	}
	if err := a.client.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	a.say("Password changed. Other sessions have been signed out.")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	msg, err := a.client.Logout(ctx)
	a.userName = ""
	if err != nil {
		return err
	}
	a.say("%s", msg)
	return nil
}

func (a *App) DeleteUser(ctx context.Context) error {
	id, err := a.ask("-Enter the id of the user to delete")
	if err != nil {
		return err
	}
	msg, err := a.client.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	a.say("%s", msg)
	return nil
}
