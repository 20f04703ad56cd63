package apperr

// Kind groups codes by how callers are expected to react.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindIneligibleState       Kind = "ineligible_state"
	KindConflict              Kind = "conflict"
	KindTransfer              Kind = "transfer"
	KindReconciliationPending Kind = "reconciliation_pending"
	KindUnexpected            Kind = "unexpected"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeInvalidRequest  Code = "error.request.invalid"
	CodeEscrowMismatch  Code = "error.game.escrow-mismatch"
	CodeWagerInvalid    Code = "error.game.wager-invalid"
	CodeNotPlayer       Code = "error.game.not-a-player"
	CodeGameNotFound    Code = "error.game.not-found"
	CodePlayerNotFound  Code = "error.player.not-found"
	CodeIneligibleState Code = "error.game.ineligible-state"
	CodeAlreadySettled  Code = "error.game.already-settled"
	CodeConflict        Code = "error.game.conflict"
	CodeAlreadyResolve  Code = "error.game.already-resolving"
	CodeGameExists      Code = "error.game.exists"
	CodeDepositMismatch Code = "error.game.deposit-mismatch"

	CodeTransferFailed         Code = "error.transfer.failed"
	CodeTransferOutcomeUnknown Code = "error.transfer.outcome-unknown"
	CodeReceiptNotFound        Code = "error.transfer.receipt-not-found"

	CodeReconciliationPending Code = "error.settlement.reconciliation-pending"
	CodeUnexpected            Code = "error.generic.unexpected"
)

var codeKinds = map[Code]Kind{
	CodeInvalidRequest:         KindValidation,
	CodeEscrowMismatch:         KindValidation,
	CodeWagerInvalid:           KindValidation,
	CodeNotPlayer:              KindValidation,
	CodeGameNotFound:           KindNotFound,
	CodePlayerNotFound:         KindNotFound,
	CodeReceiptNotFound:        KindNotFound,
	CodeIneligibleState:        KindIneligibleState,
	CodeAlreadySettled:         KindIneligibleState,
	CodeConflict:               KindConflict,
	CodeAlreadyResolve:         KindConflict,
	CodeGameExists:             KindConflict,
	CodeDepositMismatch:        KindConflict,
	CodeTransferFailed:         KindTransfer,
	CodeTransferOutcomeUnknown: KindTransfer,
	CodeReconciliationPending:  KindReconciliationPending,
	CodeUnexpected:             KindUnexpected,
}

func (c Code) Kind() Kind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindUnexpected
}
