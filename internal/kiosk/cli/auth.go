package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rostermark/kiosk/internal/cryptox"
	"github.com/rostermark/kiosk/internal/kiosk/kioskerr"
	"github.com/rostermark/kiosk/internal/kiosk/models"
)

// getSimpleText and getSecret are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getSecret = GetSecret

// onboard marks the kiosk as provisioned so stored sessions survive
// restarts.
func (a *App) onboard(ctx context.Context) {
	if err := a.gate.MarkComplete(ctx); err != nil {
		fmt.Println("Onboarding failed:", err)
		return
	}
	fmt.Println("Kiosk onboarding complete.")
}

// login prompts for staff credentials and runs the primary login. The
// password is wiped before returning.
func (a *App) login(ctx context.Context) {
	username, err := getSimpleText(a.reader, "Staff username", os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}

	password, err := getSecret("Password", os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}
	defer cryptox.Wipe(password)

	err = a.session.StartPrimaryLogin(ctx, username, string(password))
	switch {
	case err == nil:
		phase, _ := a.session.Phase()
		if phase == models.PhaseLocked {
			fmt.Println("Logged in. Enter your PIN to unlock.")
		} else {
			fmt.Println("Logged in. Set a PIN with 'pin' to enable quick unlock.")
		}
	case errors.Is(err, kioskerr.ErrInvalidCredentials):
		fmt.Println("Invalid username or password.")
	case errors.Is(err, kioskerr.ErrUnreachable):
		fmt.Println("Backend unreachable, try again later.")
	default:
		fmt.Println("Login failed:", err)
	}
}

// setPin prompts for a new PIN twice and stores it.
func (a *App) setPin(ctx context.Context) {
	pin, err := getSecret("New PIN", os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}
	defer cryptox.Wipe(pin)

	confirm, err := getSecret("Repeat PIN", os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}
	defer cryptox.Wipe(confirm)

	if !bytes.Equal(pin, confirm) {
		fmt.Println("PINs do not match.")
		return
	}

	if err := a.session.SetPin(ctx, pin); err != nil {
		if errors.Is(err, kioskerr.ErrInvalidPhase) {
			fmt.Println("Log in before setting a PIN.")
		} else {
			fmt.Println("Setting PIN failed:", err)
		}
		return
	}
	fmt.Println("PIN set. Kiosk unlocked.")
}

// unlock prompts for the PIN and verifies it against the stored credential.
func (a *App) unlock(ctx context.Context) {
	pin, err := getSecret("PIN", os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}
	defer cryptox.Wipe(pin)

	err = a.session.VerifyPin(ctx, pin)
	switch {
	case err == nil:
		fmt.Println("Unlocked.")
	case errors.Is(err, kioskerr.ErrPinLockout):
		fmt.Println("Too many failed attempts. Wait for the cooldown or log in with the staff password.")
	case errors.Is(err, kioskerr.ErrPinMismatch):
		fmt.Println("Wrong PIN.")
	case errors.Is(err, kioskerr.ErrInvalidPhase):
		fmt.Println("Nothing to unlock, log in first.")
	default:
		fmt.Println("Unlock failed:", err)
	}
}

func (a *App) lock() {
	if err := a.session.Lock(); err != nil {
		fmt.Println("Lock failed:", err)
		return
	}
	fmt.Println("Locked.")
}

// logout drops the session and both credential tiers.
func (a *App) logout(ctx context.Context) {
	if err := a.session.Logout(ctx); err != nil {
		fmt.Println("Logout failed:", err)
		return
	}
	fmt.Println("Logged out.")
}
