package bot

import (
	"context"
	"strings"

	"supportflow/user"
)

const choiceAvailableContractors = "contacts_available_contractors"

func (b *Bot) startManager(ctx context.Context, t *Turn) (State, error) {
	buttons := []Button{
		{Label: "Contacts of available contractors", Data: choiceAvailableContractors},
	}
	if err := b.transport.SendButtons(t.ChatID, "What do you need?", buttons); err != nil {
		return "", err
	}
	return StateManagerMenu, nil
}

func (b *Bot) handleManagerMenu(ctx context.Context, t *Turn) (State, error) {
	message := "I did not understand that, please use one of the buttons."

	if t.Choice == choiceAvailableContractors {
		contractors, err := b.users.ListActiveByRole(ctx, user.RoleContractor)
		if err != nil {
			return "", err
		}
		busy, err := b.orders.BusyContractorIDs(ctx)
		if err != nil {
			return "", err
		}

		lines := make([]string, 0, len(contractors))
		for _, c := range contractors {
			if busy[c.ID] {
				continue
			}
			lines = append(lines, "@"+c.Nickname)
		}
		if len(lines) == 0 {
			message = "No contractors are available right now."
		} else {
			message = strings.Join(lines, "\n")
		}
	}

	if err := b.transport.SendText(t.ChatID, message); err != nil {
		return "", err
	}
	return b.startManager(ctx, t)
}
