package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"supportflow/order"
)

const (
	choiceHowItWorks    = "how_contractor_bot_work"
	choiceWatchOrders   = "watch_orders"
	choiceMessageClient = "send_message_to_client"
	choiceCloseOrder    = "close_order"
	choiceMySalary      = "my_salary"

	takeOrderPrefix = "take_order|"
)

func takeOrderChoice(orderID string) string {
	return takeOrderPrefix + orderID
}

const contractorHelp = `When a new order appears you get a notification with a button to take it.

The current open orders are always available under "Browse orders".

Once you take an order you receive the client's access credentials.

Questions for the client go through "Message the client"; you will be notified when they reply.

When the work is done, press "Finish the order".

"My earnings this month" shows how many orders you completed in the current billing period and the payout.`

func (b *Bot) startContractor(ctx context.Context, t *Turn) (State, error) {
	buttons := []Button{
		{Label: "How does this work?", Data: choiceHowItWorks},
		{Label: "Browse orders", Data: choiceWatchOrders},
		{Label: "Message the client", Data: choiceMessageClient},
		{Label: "Finish the order", Data: choiceCloseOrder},
		{Label: "My earnings this month", Data: choiceMySalary},
	}
	if err := b.transport.SendButtons(t.ChatID, "Pick an action", buttons); err != nil {
		return "", err
	}
	return StateContractorMenu, nil
}

func (b *Bot) handleContractorMenu(ctx context.Context, t *Turn) (State, error) {
	if isBackSignal(t.Choice) {
		return b.startContractor(ctx, t)
	}

	message := "I did not understand that, please use one of the buttons."

	switch {
	case t.Choice == choiceHowItWorks:
		message = contractorHelp

	case t.Choice == choiceWatchOrders:
		return b.contractorWatchOrders(ctx, t)

	case t.Choice == choiceMessageClient:
		busy, err := b.orders.ContractorBusy(ctx, t.User.ID)
		if err != nil {
			return "", err
		}
		if busy {
			if err := b.transport.SendButtons(t.ChatID, "Write your message to the client.", []Button{{Label: "Go back", Data: choiceBack}}); err != nil {
				return "", err
			}
			return StateContractorAwaitMessage, nil
		}
		message = "You have no active order."

	case t.Choice == choiceCloseOrder:
		o, err := b.orders.InWorkByContractor(ctx, t.User.ID)
		switch {
		case errors.Is(err, order.ErrNotFound):
			message = "You have no active order."
		case err != nil:
			return "", err
		default:
			closed, err := b.orders.Close(ctx, o.ID)
			if err != nil {
				if errors.Is(err, order.ErrInvalidStatus) || errors.Is(err, order.ErrNotFound) {
					message = "The order is no longer in work."
					break
				}
				return "", err
			}
			b.notifyClientClosed(ctx, closed)
			message = "Thank you for your work! You can take a new order now."
		}

	case t.Choice == choiceMySalary:
		closed, payout, err := b.billing.ContractorEarnings(ctx, t.User.ID)
		if err != nil {
			return "", err
		}
		message = fmt.Sprintf("Orders completed this billing period: %d. Payout due: %d.", closed, payout)

	case strings.HasPrefix(t.Choice, takeOrderPrefix):
		return b.contractorTakeOrder(ctx, t)
	}

	if err := b.transport.SendText(t.ChatID, message); err != nil {
		return "", err
	}
	return b.startContractor(ctx, t)
}

func (b *Bot) contractorWatchOrders(ctx context.Context, t *Turn) (State, error) {
	available, err := b.orders.ListAvailable(ctx)
	if err != nil {
		return "", err
	}
	if len(available) == 0 {
		if err := b.transport.SendText(t.ChatID, "No orders are waiting for a contractor right now."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	}

	// One message per order so each can carry its own take button; the last
	// message also offers the way back.
	for i, o := range available {
		buttons := []Button{{Label: "Take it", Data: takeOrderChoice(o.ID)}}
		if i == len(available)-1 {
			buttons = append(buttons, Button{Label: "Go back", Data: choiceBack})
		}
		if err := b.transport.SendButtons(t.ChatID, "Task:\n"+o.Task, buttons); err != nil {
			return "", err
		}
	}
	return StateContractorMenu, nil
}

func (b *Bot) contractorTakeOrder(ctx context.Context, t *Turn) (State, error) {
	orderID := strings.TrimPrefix(t.Choice, takeOrderPrefix)

	o, err := b.orders.GetByID(ctx, orderID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		if err := b.transport.SendText(t.ChatID, "The order was not found, please browse the list again."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	case err != nil:
		return "", err
	}

	if o.Status != order.StatusCreated {
		if err := b.transport.SendText(t.ChatID, "Sorry, the order is already taken. Please browse the list again."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	}

	busy, err := b.orders.ContractorBusy(ctx, t.User.ID)
	if err != nil {
		return "", err
	}
	if busy {
		if err := b.transport.SendText(t.ChatID, "Finish your current order first, then you can take a new one."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	}

	t.Session.ClaimOrderID = orderID
	prompt := fmt.Sprintf(
		"Send your time estimate in whole hours, from %d to %d. If you think the work needs more, contact a manager: we do not provide project-scale support.",
		order.MinEstimateHours, order.MaxEstimateHours,
	)
	if err := b.transport.SendButtons(t.ChatID, prompt, []Button{{Label: "Back to start", Data: choiceStart}}); err != nil {
		return "", err
	}
	return StateContractorAwaitEstimate, nil
}

func (b *Bot) contractorAwaitEstimate(ctx context.Context, t *Turn) (State, error) {
	if isBackSignal(t.Choice) {
		t.Session.ClaimOrderID = ""
		return b.startContractor(ctx, t)
	}
	if !t.HasText {
		if err := b.transport.SendText(t.ChatID, "Something went wrong, please send the estimate as a number."); err != nil {
			return "", err
		}
		return StateContractorAwaitEstimate, nil
	}

	orderID := t.Session.ClaimOrderID
	if orderID == "" {
		if err := b.transport.SendText(t.ChatID, "I lost track of the order you picked, please browse the list again."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	}

	hours, err := strconv.Atoi(strings.TrimSpace(t.Text))
	if err != nil {
		if err := b.transport.SendText(t.ChatID, "Could not read that as a whole number, please try again."); err != nil {
			return "", err
		}
		return StateContractorAwaitEstimate, nil
	}
	if hours < order.MinEstimateHours || hours > order.MaxEstimateHours {
		prompt := fmt.Sprintf("The estimate must be from %d to %d hours. Try again or contact a manager.", order.MinEstimateHours, order.MaxEstimateHours)
		if err := b.transport.SendButtons(t.ChatID, prompt, []Button{{Label: "Back to start", Data: choiceStart}}); err != nil {
			return "", err
		}
		return StateContractorAwaitEstimate, nil
	}

	claimed, err := b.orders.Claim(ctx, orderID, t.User.ID, hours)
	switch {
	case errors.Is(err, order.ErrAlreadyClaimed), errors.Is(err, order.ErrNotFound):
		t.Session.ClaimOrderID = ""
		if err := b.transport.SendText(t.ChatID, "Sorry, the order is already taken. Please browse the list again."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	case errors.Is(err, order.ErrContractorBusy):
		t.Session.ClaimOrderID = ""
		if err := b.transport.SendText(t.ChatID, "Finish your current order first, then you can take a new one."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	case err != nil:
		return "", err
	}

	t.Session.ClaimOrderID = ""

	text := "The order is yours, happy working!"
	if claimed.Creds != "" {
		text += "\n\nAccess credentials:\n" + claimed.Creds
	}
	if err := b.transport.SendText(t.ChatID, text); err != nil {
		return "", err
	}

	b.notifyClientClaimed(ctx, claimed)

	return b.startContractor(ctx, t)
}

func (b *Bot) contractorAwaitMessage(ctx context.Context, t *Turn) (State, error) {
	if isBackSignal(t.Choice) {
		return b.startContractor(ctx, t)
	}
	if !t.HasText {
		if err := b.transport.SendText(t.ChatID, "Something went wrong, please send your message as text."); err != nil {
			return "", err
		}
		return StateContractorAwaitMessage, nil
	}

	o, err := b.orders.InWorkByContractor(ctx, t.User.ID)
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			return "", err
		}
		if err := b.transport.SendText(t.ChatID, "Something went wrong, the order is no longer in work. Please try again."); err != nil {
			return "", err
		}
		return b.startContractor(ctx, t)
	}

	if b.relayToUserID(ctx, o.ClientID, "Message from your order's contractor:\n\n"+t.Text) {
		if err := b.transport.SendText(t.ChatID, "Message delivered. You will be notified when the client replies."); err != nil {
			return "", err
		}
	} else {
		if err := b.transport.SendText(t.ChatID, "Could not deliver the message right now, please try again later."); err != nil {
			return "", err
		}
	}
	return b.startContractor(ctx, t)
}

// notifyClientClaimed tells the client their order went into work and
// records the fact on the order.
func (b *Bot) notifyClientClaimed(ctx context.Context, o order.Order) {
	hours := 0
	if o.EstimatedHours != nil {
		hours = *o.EstimatedHours
	}
	text := fmt.Sprintf("A contractor took your order and estimates about %d h of work.", hours)
	if b.relayToUserID(ctx, o.ClientID, text) {
		if err := b.orders.MarkInWorkClientInformed(ctx, o.ID); err != nil {
			b.log.Error("mark in-work informed", "order", o.ID, "err", err)
		}
	}
}

// notifyClientClosed tells the client their order is finished and records
// the fact on the order.
func (b *Bot) notifyClientClosed(ctx context.Context, o order.Order) {
	if b.relayToUserID(ctx, o.ClientID, "Your order is finished. Thank you for staying with us!") {
		if err := b.orders.MarkClosedClientInformed(ctx, o.ID); err != nil {
			b.log.Error("mark closed informed", "order", o.ID, "err", err)
		}
	}
}
