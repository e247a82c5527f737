package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"supportflow/billing"
	"supportflow/user"
)

const (
	choiceContractorBilling = "contractor_billing_prev_month"
	choiceOrdersStats       = "orders_stats"

	addChoicePrefix    = "add_"
	deleteChoicePrefix = "delete_"
)

var ownerAwaitStates = map[user.Role][2]State{
	user.RoleClient:     {StateOwnerAwaitClientAdd, StateOwnerAwaitClientDelete},
	user.RoleContractor: {StateOwnerAwaitContractorAdd, StateOwnerAwaitContractorDelete},
	user.RoleManager:    {StateOwnerAwaitManagerAdd, StateOwnerAwaitManagerDelete},
	user.RoleOwner:      {StateOwnerAwaitOwnerAdd, StateOwnerAwaitOwnerDelete},
}

func (b *Bot) startOwner(ctx context.Context, t *Turn) (State, error) {
	buttons := []Button{
		{Label: "Contractor billing, previous month", Data: choiceContractorBilling},
		{Label: "Order statistics", Data: choiceOrdersStats},
	}
	for _, role := range []user.Role{user.RoleClient, user.RoleContractor, user.RoleManager, user.RoleOwner} {
		buttons = append(buttons,
			Button{Label: "Add " + string(role), Data: addChoicePrefix + string(role)},
			Button{Label: "Remove " + string(role), Data: deleteChoicePrefix + string(role)},
		)
	}
	if err := b.transport.SendButtons(t.ChatID, "What do you need?", buttons); err != nil {
		return "", err
	}
	return StateOwnerMenu, nil
}

func (b *Bot) handleOwnerMenu(ctx context.Context, t *Turn) (State, error) {
	message := "I did not understand that, please use one of the buttons."

	switch {
	case t.Choice == choiceContractorBilling:
		lines, err := b.billing.ContractorBilling(ctx)
		if err != nil {
			return "", err
		}
		message = renderBillingTable(lines)

	case t.Choice == choiceOrdersStats:
		stats, err := b.billing.MonthlyOrderStats(ctx)
		if err != nil {
			return "", err
		}
		message = renderStatsTable(stats)

	case strings.HasPrefix(t.Choice, addChoicePrefix), strings.HasPrefix(t.Choice, deleteChoicePrefix):
		adding := strings.HasPrefix(t.Choice, addChoicePrefix)
		roleName := strings.TrimPrefix(strings.TrimPrefix(t.Choice, addChoicePrefix), deleteChoicePrefix)
		role := user.Role(roleName)
		states, ok := ownerAwaitStates[role]
		if !ok {
			break
		}
		verb := "add"
		next := states[0]
		if !adding {
			verb = "remove"
			next = states[1]
		}
		prompt := fmt.Sprintf("Send the nickname of the %s to %s.", role, verb)
		if err := b.transport.SendButtons(t.ChatID, prompt, []Button{{Label: "Go back", Data: choiceBack}}); err != nil {
			return "", err
		}
		return next, nil
	}

	if err := b.transport.SendText(t.ChatID, message); err != nil {
		return "", err
	}
	return b.startOwner(ctx, t)
}

// ownerAwaitAdd builds the waiting-for-nickname handler of the add flow for
// one role. New clients start on the cheapest tariff, unpaid.
func (b *Bot) ownerAwaitAdd(role user.Role) handlerFunc {
	return func(ctx context.Context, t *Turn) (State, error) {
		state := ownerAwaitStates[role][0]
		if isBackSignal(t.Choice) {
			return b.startOwner(ctx, t)
		}
		if !t.HasText {
			if err := b.transport.SendText(t.ChatID, "Something went wrong, please send the nickname as text."); err != nil {
				return "", err
			}
			return state, nil
		}

		nickname := strings.TrimPrefix(strings.TrimSpace(t.Text), "@")

		var tariffID *string
		if role == user.RoleClient {
			tariff, err := b.billing.CheapestTariff(ctx)
			if err != nil {
				if errors.Is(err, billing.ErrTariffNotFound) {
					if err := b.transport.SendText(t.ChatID, "No tariffs are configured yet; add one in the back office first."); err != nil {
						return "", err
					}
					return b.startOwner(ctx, t)
				}
				return "", err
			}
			tariffID = &tariff.ID
		}

		added, err := b.users.Add(ctx, nickname, role, tariffID)
		switch {
		case errors.Is(err, user.ErrBadNickname):
			if err := b.transport.SendText(t.ChatID, "A nickname is 5-32 letters, digits or underscores. Try again."); err != nil {
				return "", err
			}
			return state, nil
		case errors.Is(err, user.ErrNicknameTaken):
			if err := b.transport.SendText(t.ChatID, fmt.Sprintf("@%s is already registered.", nickname)); err != nil {
				return "", err
			}
			return b.startOwner(ctx, t)
		case err != nil:
			return "", err
		}

		if err := b.transport.SendText(t.ChatID, fmt.Sprintf("Done, @%s joined as %s.", added.Nickname, added.Role)); err != nil {
			return "", err
		}
		return b.startOwner(ctx, t)
	}
}

// ownerAwaitDelete builds the waiting-for-nickname handler of the remove
// flow for one role. Removing a contractor releases their in-work orders
// back to created with a fresh SLA clock and re-announces them.
func (b *Bot) ownerAwaitDelete(role user.Role) handlerFunc {
	return func(ctx context.Context, t *Turn) (State, error) {
		state := ownerAwaitStates[role][1]
		if isBackSignal(t.Choice) {
			return b.startOwner(ctx, t)
		}
		if !t.HasText {
			if err := b.transport.SendText(t.ChatID, "Something went wrong, please send the nickname as text."); err != nil {
				return "", err
			}
			return state, nil
		}

		nickname := strings.TrimPrefix(strings.TrimSpace(t.Text), "@")

		removed, err := b.users.Deactivate(ctx, nickname, role)
		switch {
		case errors.Is(err, user.ErrNotFound):
			if err := b.transport.SendText(t.ChatID, fmt.Sprintf("No active %s named @%s was found.", role, nickname)); err != nil {
				return "", err
			}
			return b.startOwner(ctx, t)
		case err != nil:
			return "", err
		}

		if role == user.RoleContractor {
			released, err := b.orders.ReleaseFromContractor(ctx, removed.ID)
			if err != nil {
				return "", err
			}
			for _, o := range released {
				b.relayToUserID(ctx, o.ClientID, "Your order is waiting for a new contractor; we are on it.")
				b.notifyAvailableContractors(ctx, o)
			}
		}

		if err := b.transport.SendText(t.ChatID, fmt.Sprintf("Done, @%s (%s) was deactivated.", removed.Nickname, removed.Role)); err != nil {
			return "", err
		}
		return b.startOwner(ctx, t)
	}
}

func renderBillingTable(lines []billing.ContractorLine) string {
	if len(lines) == 0 {
		return "No closed orders in the previous billing period."
	}
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Contractor", "Closed orders"})
	for _, line := range lines {
		tw.AppendRow(table.Row{"@" + line.Contractor, line.Count})
	}
	return tw.Render()
}

func renderStatsTable(stats []billing.PeriodStat) string {
	if len(stats) == 0 {
		return "No orders recorded yet."
	}
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Period start", "Client", "Orders"})
	for _, stat := range stats {
		tw.AppendRow(table.Row{stat.PeriodStart.Format("2006-01-02"), stat.Client, stat.Count})
	}
	return tw.Render()
}
