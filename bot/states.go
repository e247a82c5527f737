package bot

// State labels one step of a multi-turn dialogue. The label is persisted on
// the participant record between turns; an absent label means StateStart.
type State string

const (
	StateStart State = "START"

	StateClientMenu         State = "HANDLE_MENU_CLIENT"
	StateClientAwaitTask    State = "WAITING_ORDER_TASK"
	StateClientAwaitCreds   State = "WAITING_CREDENTIALS"
	StateClientAwaitMessage State = "WAIT_MESSAGE_TO_CONTRACTOR_CLIENT"

	StateContractorMenu          State = "HANDLE_MENU_CONTRACTOR"
	StateContractorAwaitEstimate State = "WAIT_ESTIMATE_CONTRACTOR"
	StateContractorAwaitMessage  State = "WAIT_MESSAGE_TO_CLIENT_CONTRACTOR"

	StateManagerMenu State = "HANDLE_MENU_MANAGER"

	StateOwnerMenu                  State = "HANDLE_MENU_OWNER"
	StateOwnerAwaitClientAdd        State = "WAITING_USERNAME_CLIENT_ADD"
	StateOwnerAwaitContractorAdd    State = "WAITING_USERNAME_CONTRACTOR_ADD"
	StateOwnerAwaitManagerAdd       State = "WAITING_USERNAME_MANAGER_ADD"
	StateOwnerAwaitOwnerAdd         State = "WAITING_USERNAME_OWNER_ADD"
	StateOwnerAwaitClientDelete     State = "WAITING_USERNAME_CLIENT_DELETE"
	StateOwnerAwaitContractorDelete State = "WAITING_USERNAME_CONTRACTOR_DELETE"
	StateOwnerAwaitManagerDelete    State = "WAITING_USERNAME_MANAGER_DELETE"
	StateOwnerAwaitOwnerDelete      State = "WAITING_USERNAME_OWNER_DELETE"
)

// Navigation signals shared across waiting states. Both return to the
// role's start menu without side effects.
const (
	choiceBack  = "get_back"
	choiceStart = "return_to_start"
)

func isBackSignal(choice string) bool {
	return choice == choiceBack || choice == choiceStart
}
