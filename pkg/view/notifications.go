package view

import (
	"errors"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/evidence"
)

// Variant is the visual weight of a notification.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient message for the user.
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

// Action is what the user asked for.
type Action int

const (
	ActionConnect Action = iota
	ActionRoleCheck
	ActionAddEvidence
	ActionRetrieveEvidence
	ActionGrantRole
	ActionRevokeRole
)

// Notifier builds notifications. ChainName is used in wrong network messages.
type Notifier struct {
	ChainName string
}

// Start is shown when an action begins. subject names the role for role changes.
func (n Notifier) Start(a Action, subject string) Notification {
	switch a {
	case ActionConnect:
		return info("Connecting Wallet", "Requesting account access...")
	case ActionAddEvidence:
		return info("Uploading to IPFS", "Step 1/2: Uploading file to IPFS...")
	case ActionRetrieveEvidence:
		return info("Retrieving Evidence", "Fetching evidence from blockchain...")
	case ActionGrantRole:
		return info("Granting Role", "Granting "+subject+" role...")
	case ActionRevokeRole:
		return info("Revoking Role", "Revoking "+subject+" role...")
	}
	return info("Checking Roles", "Reading account roles...")
}

// Progress is shown as a state-changing action advances.
func (n Notifier) Progress(a Action, stage evidence.Stage) Notification {
	switch stage {
	case evidence.StageUploaded:
		if a == ActionAddEvidence {
			return info("Adding to Blockchain", "Step 2/2: Adding evidence to blockchain...")
		}
	case evidence.StageNetworkChecked:
		return info("Network Ready", "Wallet is on "+n.chainName()+". Submitting transaction...")
	case evidence.StageSubmitted:
		return info("Transaction Submitted", "Waiting for one confirmation...")
	case evidence.StageConfirmed:
		return info("Transaction Confirmed", "The transaction was included in a block.")
	}
	return info("Checking Network", "Making sure the wallet is on "+n.chainName()+"...")
}

// Success is shown when an action completes.
func (n Notifier) Success(a Action, subject string) Notification {
	switch a {
	case ActionConnect:
		return success("Wallet Connected", "Successfully connected to the wallet!")
	case ActionAddEvidence:
		return success("Evidence Added", "Evidence successfully added to the blockchain!")
	case ActionRetrieveEvidence:
		return success("Evidence Retrieved", "Evidence successfully retrieved from blockchain.")
	case ActionGrantRole:
		return success("Role Granted", "Successfully granted "+subject+" role!")
	case ActionRevokeRole:
		return success("Role Revoked", "Successfully revoked "+subject+" role!")
	}
	return success("Roles Updated", "Account roles refreshed.")
}

// Failure is shown when an action fails.
func (n Notifier) Failure(a Action, err error) Notification {
	kind := evidence.Classify(err)
	if errors.Is(err, ErrPanelHidden) {
		return destructive("Access Restricted", err.Error())
	}

	switch kind {
	case evidence.KindInvalidInput:
		return destructive(invalidInputTitle(a), err.Error())
	case evidence.KindWrongNetwork:
		return destructive("Wrong Network", "Please switch to "+n.chainName()+" and try again.")
	case evidence.KindNoWallet:
		return destructive("Wallet Required", "No wallet is available. Create or import a key, or start the remote wallet.")
	case evidence.KindNotConnected:
		return destructive("Wallet Not Connected", "Connect the wallet and try again.")
	case evidence.KindBusy:
		return destructive("Please Wait", "The previous request is still in progress.")
	case evidence.KindRejected:
		return destructive(failureTitle(a), "User rejected request.")
	case evidence.KindNumericRange:
		return destructive(failureTitle(a), "The contract returned a value this client cannot represent.")
	case evidence.KindReverted:
		if reason, ok := contract.RevertReason(err); ok {
			return destructive(failureTitle(a), reason)
		}
		return destructive(failureTitle(a), "The transaction was reverted by the contract.")
	}
	return destructive(failureTitle(a), err.Error())
}

func (n Notifier) chainName() string {
	if n.ChainName == "" {
		return "the required network"
	}
	return n.ChainName
}

func invalidInputTitle(a Action) string {
	switch a {
	case ActionAddEvidence:
		return "Missing Information"
	case ActionRetrieveEvidence:
		return "Missing ID"
	case ActionGrantRole, ActionRevokeRole:
		return "Invalid Address"
	}
	return "Invalid Input"
}

func failureTitle(a Action) string {
	switch a {
	case ActionConnect:
		return "Connection Failed"
	case ActionAddEvidence:
		return "Upload Failed"
	case ActionRetrieveEvidence:
		return "Retrieval Failed"
	case ActionGrantRole:
		return "Grant Failed"
	case ActionRevokeRole:
		return "Revoke Failed"
	}
	return "Role Check Failed"
}

func info(title, desc string) Notification {
	return Notification{Title: title, Description: desc, Variant: VariantDefault}
}

func success(title, desc string) Notification {
	return Notification{Title: title, Description: desc, Variant: VariantSuccess}
}

func destructive(title, desc string) Notification {
	return Notification{Title: title, Description: desc, Variant: VariantDestructive}
}
