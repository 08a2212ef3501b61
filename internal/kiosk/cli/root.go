package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rostermark/kiosk/internal/kiosk/models"
)

func (a *App) getStatus() string {
	phase, reason := a.session.Phase()
	s := string(phase)
	if reason != models.ReasonNone {
		s = fmt.Sprintf("%s:%s", phase, reason)
	}
	return fmt.Sprintf("(%s %s)", s, a.Mode)
}

// Root runs the operator REPL until "exit" or stdin EOF.
func (a *App) Root(ctx context.Context) {
	fmt.Println("Rostermark kiosk (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("kiosk %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				fmt.Println("Available commands: roster, in <member>, out <member>, cancel <intent>, refresh, status, lock, logout, exit")
			} else {
				fmt.Println("Available commands: onboard, login, pin, unlock, status, logout, exit")
			}

		case "onboard":
			a.onboard(ctx)
		case "login":
			a.login(ctx)
		case "pin":
			a.setPin(ctx)
		case "unlock":
			a.unlock(ctx)
		case "lock":
			a.lock()
		case "logout":
			a.logout(ctx)
		case "roster":
			a.listRoster(ctx)
		case "refresh":
			if err := a.refreshRoster(ctx); err != nil {
				fmt.Println("Roster refresh failed:", err)
			}
		case "in":
			if len(args) == 0 {
				fmt.Println("Usage: in <member-id>")
				continue
			}
			a.mark(ctx, args[0], models.ActionCheckIn)
		case "out":
			if len(args) == 0 {
				fmt.Println("Usage: out <member-id>")
				continue
			}
			a.mark(ctx, args[0], models.ActionCheckOut)
		case "cancel":
			if len(args) == 0 {
				fmt.Println("Usage: cancel <intent-id>")
				continue
			}
			a.cancel(ctx, args[0])
		case "status":
			a.status(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return

		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
