package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supportflow/order"
	"supportflow/pairing"
	"supportflow/user"
)

const (
	choiceCreateOrder       = "create_order"
	choiceMessageContractor = "send_message_to_contractor"
	choiceSeeContractors    = "see_my_contractors"
	choiceReserveContractor = "reserve_contractor"
)

const orderTaskPrompt = `You can describe your request right here in the chat:
- deadline
- what needs to be done
- anything else we should know

Examples:
- "The site is down since this morning, please restore it today."
- "Add a payment form to the landing page by Friday."`

func (b *Bot) startClient(ctx context.Context, t *Turn) (State, error) {
	tariff, err := b.tariffOf(ctx, t.User)
	if err != nil {
		return "", fmt.Errorf("client tariff: %w", err)
	}

	buttons := []Button{
		{Label: "Leave a request", Data: choiceCreateOrder},
		{Label: "Message my contractor", Data: choiceMessageContractor},
	}
	if tariff.CanSeeContractorContacts {
		buttons = append(buttons, Button{Label: "Contractors who helped me", Data: choiceSeeContractors})
	}
	if tariff.CanReserveContractor {
		buttons = append(buttons, Button{Label: "Reserve my last contractor", Data: choiceReserveContractor})
	}

	if err := b.transport.SendButtons(t.ChatID, "Hello! What would you like to do?", buttons); err != nil {
		return "", err
	}
	return StateClientMenu, nil
}

func (b *Bot) handleClientMenu(ctx context.Context, t *Turn) (State, error) {
	message := "I did not understand that, please use one of the buttons."

	switch t.Choice {
	case choiceCreateOrder:
		return b.clientCreateOrder(ctx, t)

	case choiceMessageContractor:
		o, err := b.orders.ActiveByClient(ctx, t.User.ID)
		if err == nil && o.Status == order.StatusInWork {
			if err := b.transport.SendButtons(t.ChatID, "Write your message to the contractor.", []Button{{Label: "Go back", Data: choiceBack}}); err != nil {
				return "", err
			}
			return StateClientAwaitMessage, nil
		}
		if err != nil && !errors.Is(err, order.ErrNotFound) {
			return "", err
		}
		message = "You have no order in work right now."

	case choiceSeeContractors:
		tariff, err := b.tariffOf(ctx, t.User)
		if err != nil {
			return "", err
		}
		message = "Your tariff does not include contractor contacts. Upgrade to unlock it."
		if tariff.CanSeeContractorContacts {
			contractors, err := b.pairs.ContractorsOf(ctx, t.User.ID)
			if err != nil {
				return "", err
			}
			if len(contractors) == 0 {
				message = "No contractors yet: the list fills in after your first completed order."
			} else {
				lines := make([]string, 0, len(contractors))
				for _, c := range contractors {
					lines = append(lines, "@"+c.Nickname)
				}
				message = strings.Join(lines, "\n")
			}
		}

	case choiceReserveContractor:
		tariff, err := b.tariffOf(ctx, t.User)
		if err != nil {
			return "", err
		}
		message = "Your tariff does not include contractor reservation. Upgrade to unlock it."
		if tariff.CanReserveContractor {
			contractor, created, err := b.pairs.ReserveLast(ctx, t.User.ID)
			switch {
			case errors.Is(err, pairing.ErrNoContractors):
				message = "Nothing to reserve yet: you need at least one completed order first."
			case err != nil:
				return "", err
			case created:
				message = fmt.Sprintf("Done, @%s is reserved for your future orders.", contractor.Nickname)
			default:
				message = fmt.Sprintf("@%s is already reserved for you.", contractor.Nickname)
			}
		}
	}

	if err := b.transport.SendText(t.ChatID, message); err != nil {
		return "", err
	}
	return b.startClient(ctx, t)
}

func (b *Bot) clientCreateOrder(ctx context.Context, t *Turn) (State, error) {
	if !t.User.Paid {
		if err := b.transport.SendText(t.ChatID, "Your tariff is not paid yet, please settle the invoice first."); err != nil {
			return "", err
		}
		return b.startClient(ctx, t)
	}

	tariff, err := b.tariffOf(ctx, t.User)
	if err != nil {
		return "", err
	}

	used, err := b.billing.OrdersThisPeriod(ctx, t.User.ID)
	if err != nil {
		return "", err
	}
	if used >= tariff.OrdersLimit {
		if err := b.transport.SendText(t.ChatID, "You used up this period's request quota. A higher tariff raises the limit."); err != nil {
			return "", err
		}
		return b.startClient(ctx, t)
	}

	if _, err := b.orders.ActiveByClient(ctx, t.User.ID); err == nil {
		if err := b.transport.SendText(t.ChatID, "Your previous request is still being handled, please wait."); err != nil {
			return "", err
		}
		return b.startClient(ctx, t)
	} else if !errors.Is(err, order.ErrNotFound) {
		return "", err
	}

	if err := b.transport.SendButtons(t.ChatID, orderTaskPrompt, []Button{{Label: "Go back", Data: choiceBack}}); err != nil {
		return "", err
	}
	return StateClientAwaitTask, nil
}

func (b *Bot) clientAwaitTask(ctx context.Context, t *Turn) (State, error) {
	if isBackSignal(t.Choice) {
		return b.startClient(ctx, t)
	}
	if !t.HasText {
		if err := b.transport.SendText(t.ChatID, "Something went wrong, please send the request as text."); err != nil {
			return "", err
		}
		return StateClientAwaitTask, nil
	}

	t.Session.DraftTask = t.Text
	prompt := "Now send the access credentials in one message.\nExample:\nlogin: admin\npassword: qwerty"
	if err := b.transport.SendButtons(t.ChatID, prompt, []Button{{Label: "Go back", Data: choiceBack}}); err != nil {
		return "", err
	}
	return StateClientAwaitCreds, nil
}

func (b *Bot) clientAwaitCreds(ctx context.Context, t *Turn) (State, error) {
	if isBackSignal(t.Choice) {
		t.Session.DraftTask = ""
		return b.startClient(ctx, t)
	}
	if !t.HasText {
		if err := b.transport.SendText(t.ChatID, "Something went wrong, please send the credentials as text."); err != nil {
			return "", err
		}
		return StateClientAwaitCreds, nil
	}

	task := t.Session.DraftTask
	if task == "" {
		if err := b.transport.SendText(t.ChatID, "I lost your request text, please send it again."); err != nil {
			return "", err
		}
		return StateClientAwaitTask, nil
	}

	tariff, err := b.tariffOf(ctx, t.User)
	if err != nil {
		return "", err
	}

	created, err := b.orders.Create(ctx, order.CreateParams{
		ClientID:    t.User.ID,
		Task:        task,
		Creds:       t.Text,
		OrdersLimit: tariff.OrdersLimit,
	})
	switch {
	case errors.Is(err, order.ErrQuotaExceeded):
		if err := b.transport.SendText(t.ChatID, "You used up this period's request quota. A higher tariff raises the limit."); err != nil {
			return "", err
		}
		return b.startClient(ctx, t)
	case errors.Is(err, order.ErrAlreadyActive):
		if err := b.transport.SendText(t.ChatID, "Your previous request is still being handled, please wait."); err != nil {
			return "", err
		}
		return b.startClient(ctx, t)
	case err != nil:
		return "", err
	}

	t.Session.DraftTask = ""

	confirm := fmt.Sprintf(
		"Thank you! Your request is registered. A contractor will pick it up within %d h %d min.",
		tariff.ReactionTimeMinutes/60, tariff.ReactionTimeMinutes%60,
	)
	if err := b.transport.SendText(t.ChatID, confirm); err != nil {
		return "", err
	}

	b.notifyAvailableContractors(ctx, created)

	return b.startClient(ctx, t)
}

func (b *Bot) clientAwaitMessage(ctx context.Context, t *Turn) (State, error) {
	if isBackSignal(t.Choice) {
		return b.startClient(ctx, t)
	}
	if !t.HasText {
		if err := b.transport.SendText(t.ChatID, "Something went wrong, please send your message as text."); err != nil {
			return "", err
		}
		return StateClientAwaitMessage, nil
	}

	o, err := b.orders.ActiveByClient(ctx, t.User.ID)
	if err != nil || o.Status != order.StatusInWork || o.ContractorID == nil {
		if err != nil && !errors.Is(err, order.ErrNotFound) {
			return "", err
		}
		if err := b.transport.SendText(t.ChatID, "Something went wrong, the order is no longer in work. Please try again."); err != nil {
			return "", err
		}
		return b.startClient(ctx, t)
	}

	if b.relayToUserID(ctx, *o.ContractorID, "Message from your client:\n\n"+t.Text) {
		if err := b.transport.SendText(t.ChatID, "Message delivered. You will be notified when the contractor replies."); err != nil {
			return "", err
		}
	} else {
		if err := b.transport.SendText(t.ChatID, "Could not deliver the message right now, please try again later."); err != nil {
			return "", err
		}
	}
	return b.startClient(ctx, t)
}

// notifyAvailableContractors pings every active non-busy contractor about a
// fresh order. Delivery is best-effort; failures only get logged.
func (b *Bot) notifyAvailableContractors(ctx context.Context, o order.Order) {
	contractors, err := b.users.ListActiveByRole(ctx, user.RoleContractor)
	if err != nil {
		b.log.Error("list contractors for new order", "err", err)
		return
	}
	busy, err := b.orders.BusyContractorIDs(ctx)
	if err != nil {
		b.log.Error("busy contractors for new order", "err", err)
		return
	}

	text := "New order available:\n\n" + o.Task
	buttons := []Button{{Label: "Take it", Data: takeOrderChoice(o.ID)}}
	for _, c := range contractors {
		if c.ChatID == nil || busy[c.ID] {
			continue
		}
		if err := b.transport.SendButtons(*c.ChatID, text, buttons); err != nil {
			b.log.Warn("notify contractor", "contractor", c.Nickname, "err", err)
		}
	}
}

// relayToUserID sends text to another participant's chat; false when the
// participant has no known chat or delivery failed.
func (b *Bot) relayToUserID(ctx context.Context, userID, text string) bool {
	recipient, err := b.users.GetByID(ctx, userID)
	if err != nil || recipient.ChatID == nil {
		return false
	}
	return b.transport.SendText(*recipient.ChatID, text) == nil
}
