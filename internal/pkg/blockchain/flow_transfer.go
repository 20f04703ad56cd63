package blockchain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/onflow/cadence"
	"github.com/onflow/flow-go-sdk"
	flowgrpc "github.com/onflow/flow-go-sdk/access/grpc"
	"github.com/onflow/flow-go-sdk/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const transferGasLimit = 9999

// flowAccess is the part of the Flow access API the transfer client needs.
type flowAccess interface {
	GetLatestBlockHeader(ctx context.Context, isSealed bool) (*flow.BlockHeader, error)
	GetAccount(ctx context.Context, address flow.Address) (*flow.Account, error)
	SendTransaction(ctx context.Context, tx flow.Transaction) error
	GetTransactionResult(ctx context.Context, txID flow.Identifier) (*flow.TransactionResult, error)
	ExecuteScriptAtLatestBlock(ctx context.Context, script []byte, arguments []cadence.Value) (cadence.Value, error)
	GetEventsForHeightRange(ctx context.Context, eventType string, startHeight uint64, endHeight uint64) ([]flow.BlockEvents, error)
}

type FlowTransferer struct {
	access       flowAccess
	admin        flow.Address
	keyIndex     int
	signer       crypto.Signer
	timeout      time.Duration
	pollMin      time.Duration
	pollMax      time.Duration
	resolveTx    []byte
	heightScript []byte
	eventType    string
}

type FlowOptions struct {
	AccessHost      string
	ContractAddress string
	Admin           Authorizer
	Timeout         time.Duration
}

// NewFlowTransferer dials the access node and loads the admin signer.
func NewFlowTransferer(ctx context.Context, opts FlowOptions) (*FlowTransferer, error) {
	client, err := flowgrpc.NewClient(opts.AccessHost)
	if err != nil {
		return nil, fmt.Errorf("dial flow access node: %w", err)
	}
	signer, err := opts.Admin.Signer(ctx)
	if err != nil {
		return nil, err
	}
	return newFlowTransferer(client, signer, opts), nil
}

func newFlowTransferer(access flowAccess, signer crypto.Signer, opts FlowOptions) *FlowTransferer {
	contract := flow.HexToAddress(opts.ContractAddress)
	return &FlowTransferer{
		access:       access,
		admin:        opts.Admin.Address(),
		keyIndex:     opts.Admin.KeyIndex,
		signer:       signer,
		timeout:      opts.Timeout,
		pollMin:      500 * time.Millisecond,
		pollMax:      5 * time.Second,
		resolveTx:    withContract(resolveGameTransaction, contract),
		heightScript: withContract(resolvedHeightScript, contract),
		eventType:    fmt.Sprintf("A.%s.%s", contract.Hex(), gameResolvedEvent),
	}
}

func withContract(code string, contract flow.Address) []byte {
	return []byte(strings.ReplaceAll(code, escrowContractPlaceholder, "0x"+contract.Hex()))
}

// Transfer submits the payout transaction and waits until it is sealed.
// The whole call, send included, is bounded by the configured timeout.
func (t *FlowTransferer) Transfer(ctx context.Context, escrowAccount string, destination string, amount decimal.Decimal) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.buildResolveTx(ctx, escrowAccount, destination, amount)
	if err != nil {
		return Receipt{}, apperr.TransferFailed(err)
	}

	if err := t.access.SendTransaction(ctx, *tx); err != nil {
		if isAmbiguousSend(err) {
			return Receipt{}, apperr.TransferOutcomeUnknown(err)
		}
		return Receipt{}, apperr.TransferFailed(err)
	}

	log.Info().
		Str("escrowAccount", escrowAccount).
		Str("txId", tx.ID().String()).
		Msg("Payout transaction sent")

	return t.waitForSeal(ctx, tx.ID())
}

func (t *FlowTransferer) buildResolveTx(ctx context.Context, escrowAccount string, destination string, amount decimal.Decimal) (*flow.Transaction, error) {
	ufix, err := cadence.NewUFix64(amount.StringFixed(8))
	if err != nil {
		return nil, fmt.Errorf("amount %s: %w", amount, err)
	}

	header, err := t.access.GetLatestBlockHeader(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("latest block: %w", err)
	}
	account, err := t.access.GetAccount(ctx, t.admin)
	if err != nil {
		return nil, fmt.Errorf("admin account: %w", err)
	}
	if t.keyIndex < 0 || t.keyIndex >= len(account.Keys) {
		return nil, fmt.Errorf("admin account has no key %d", t.keyIndex)
	}
	key := account.Keys[t.keyIndex]

	destinationAddress := flow.HexToAddress(destination)
	tx := flow.NewTransaction().
		SetScript(t.resolveTx).
		SetGasLimit(transferGasLimit).
		SetReferenceBlockID(header.ID).
		SetProposalKey(t.admin, key.Index, key.SequenceNumber).
		SetPayer(t.admin).
		AddAuthorizer(t.admin)

	args := []cadence.Value{
		cadence.String(escrowAccount),
		cadence.BytesToAddress(destinationAddress.Bytes()),
		ufix,
	}
	for _, arg := range args {
		if err := tx.AddArgument(arg); err != nil {
			return nil, err
		}
	}

	if err := tx.SignEnvelope(t.admin, key.Index, t.signer); err != nil {
		return nil, fmt.Errorf("sign payout: %w", err)
	}
	return tx, nil
}

func (t *FlowTransferer) waitForSeal(ctx context.Context, id flow.Identifier) (Receipt, error) {
	b := &backoff.Backoff{
		Min:    t.pollMin,
		Max:    t.pollMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		result, err := t.access.GetTransactionResult(ctx, id)
		if err != nil {
			log.Debug().Err(err).Str("txId", id.String()).Msg("Polling payout result")
		} else {
			switch result.Status {
			case flow.TransactionStatusSealed:
				if result.Error != nil {
					return Receipt{}, apperr.TransferFailed(result.Error)
				}
				return Receipt{Reference: id.String()}, nil
			case flow.TransactionStatusExpired:
				return Receipt{}, apperr.TransferFailed(fmt.Errorf("transaction %s expired", id))
			}
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return Receipt{}, apperr.TransferOutcomeUnknown(fmt.Errorf("transaction %s not sealed: %w", id, ctx.Err()))
		case <-timer.C:
		}
	}
}

// QueryReceipt looks up the payout of an escrow through the height at which
// the contract recorded its resolution.
func (t *FlowTransferer) QueryReceipt(ctx context.Context, escrowAccount string) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	value, err := t.access.ExecuteScriptAtLatestBlock(ctx, t.heightScript, []cadence.Value{cadence.String(escrowAccount)})
	if err != nil {
		return Receipt{}, fmt.Errorf("query resolution height: %w", err)
	}

	height, ok := resolvedHeight(value)
	if !ok {
		return Receipt{}, apperr.ErrReceiptNotFound
	}

	blocks, err := t.access.GetEventsForHeightRange(ctx, t.eventType, height, height)
	if err != nil {
		return Receipt{}, fmt.Errorf("query resolution events: %w", err)
	}
	for _, block := range blocks {
		for _, event := range block.Events {
			if eventEscrowId(event.Value) == escrowAccount {
				return Receipt{Reference: event.TransactionID.String()}, nil
			}
		}
	}
	return Receipt{}, fmt.Errorf("escrow %s resolved at height %d without event", escrowAccount, height)
}

func resolvedHeight(value cadence.Value) (uint64, bool) {
	if opt, ok := value.(cadence.Optional); ok {
		if opt.Value == nil {
			return 0, false
		}
		value = opt.Value
	}
	height, ok := value.(cadence.UInt64)
	return uint64(height), ok
}

func eventEscrowId(event cadence.Event) string {
	if len(event.Fields) == 0 {
		return ""
	}
	id, ok := event.Fields[0].(cadence.String)
	if !ok {
		return ""
	}
	return string(id)
}

// isAmbiguousSend reports whether a failed send may still have reached the
// network. Anything that is not a clear rejection counts.
func isAmbiguousSend(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		var withStatus interface{ GRPCStatus() *status.Status }
		if !errors.As(err, &withStatus) {
			return true
		}
		st = withStatus.GRPCStatus()
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied,
		codes.Unauthenticated, codes.AlreadyExists, codes.ResourceExhausted, codes.NotFound:
		return false
	}
	return true
}
