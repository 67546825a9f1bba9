package rewards

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayoutMode selects how applied rewards are settled after internal accounting
type PayoutMode string

const (
	PayoutModeInternal PayoutMode = "internal"
	PayoutModeOnChain  PayoutMode = "onchain"
)

// weiPlaces converts a token amount into its smallest unit
const weiPlaces = 18

// ParsePayoutMode returns the mode named by s. Unknown values report false.
func ParsePayoutMode(s string) (PayoutMode, bool) {
	switch PayoutMode(strings.ToLower(strings.TrimSpace(s))) {
	case PayoutModeInternal:
		return PayoutModeInternal, true
	case PayoutModeOnChain, "on-chain", "on_chain":
		return PayoutModeOnChain, true
	default:
		return PayoutModeInternal, false
	}
}

// SettlementExecutor runs after a batch has been applied to the internal ledger
type SettlementExecutor interface {
	Settle(ctx context.Context, run Run, applied []Applied) error
}

// InternalSettlement leaves the internal ledger as the only record of the payout
type InternalSettlement struct{}

// Settle implements SettlementExecutor
func (InternalSettlement) Settle(context.Context, Run, []Applied) error {
	return nil
}

// Transfer is one planned external payment
type Transfer struct {
	UserID uuid.UUID
	To     common.Address
	Wei    *big.Int
}

// SettlementBatch is the set of transfers planned for one run
type SettlementBatch struct {
	RunID     uuid.UUID
	Period    string
	ChainID   int64
	Transfers []Transfer
	Skipped   []uuid.UUID
	Hash      common.Hash
}

// Total returns the sum of every planned transfer in wei
func (b SettlementBatch) Total() *big.Int {
	total := new(big.Int)
	for _, t := range b.Transfers {
		total.Add(total, t.Wei)
	}
	return total
}

// OnChainSettlement plans an external transfer batch for the run and records the intent.
// No transaction is signed or broadcast.
type OnChainSettlement struct {
	chainID   int64
	addresses AddressBook
	logger    *zap.Logger
}

// NewOnChainSettlement creates an on-chain settlement planner for chainID. Recipients
// other than the candidate owner are resolved through addresses.
func NewOnChainSettlement(chainID int64, addresses AddressBook, logger *zap.Logger) *OnChainSettlement {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnChainSettlement{chainID: chainID, addresses: addresses, logger: logger}
}

// Plan groups every applied ledger entry, kickbacks included, by recipient address.
// Recipients without a valid address are listed once in Skipped.
func (s *OnChainSettlement) Plan(ctx context.Context, run Run, applied []Applied) (SettlementBatch, error) {
	batch := SettlementBatch{
		RunID:   run.ID,
		Period:  run.Period,
		ChainID: s.chainID,
	}

	addresses, err := s.resolve(ctx, applied)
	if err != nil {
		return batch, err
	}

	index := make(map[common.Address]int)
	skipped := make(map[uuid.UUID]bool)
	for _, a := range applied {
		for _, entry := range a.Entries {
			addr, ok := addresses[entry.UserID]
			if !ok || !common.IsHexAddress(addr) {
				if !skipped[entry.UserID] {
					skipped[entry.UserID] = true
					batch.Skipped = append(batch.Skipped, entry.UserID)
				}
				continue
			}
			to := common.HexToAddress(addr)
			wei := entry.Amount.Shift(weiPlaces).BigInt()

			if i, ok := index[to]; ok {
				batch.Transfers[i].Wei.Add(batch.Transfers[i].Wei, wei)
				continue
			}
			index[to] = len(batch.Transfers)
			batch.Transfers = append(batch.Transfers, Transfer{UserID: entry.UserID, To: to, Wei: wei})
		}
	}

	var payload []byte
	payload = append(payload, []byte(run.Period)...)
	for _, t := range batch.Transfers {
		payload = append(payload, t.To.Bytes()...)
		payload = append(payload, common.LeftPadBytes(t.Wei.Bytes(), 32)...)
	}
	batch.Hash = crypto.Keccak256Hash(payload)

	return batch, nil
}

// resolve maps each entry recipient to an address. The candidate's own address wins
// over the address book.
func (s *OnChainSettlement) resolve(ctx context.Context, applied []Applied) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]bool)
	var lookup []uuid.UUID
	for _, a := range applied {
		for _, entry := range a.Entries {
			if entry.UserID == a.Reward.UserID && a.Reward.WalletAddress != nil {
				continue
			}
			if !seen[entry.UserID] {
				seen[entry.UserID] = true
				lookup = append(lookup, entry.UserID)
			}
		}
	}

	addresses := make(map[uuid.UUID]string)
	if len(lookup) > 0 && s.addresses != nil {
		found, err := s.addresses.WalletAddresses(ctx, lookup)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve settlement addresses: %w", err)
		}
		for id, addr := range found {
			addresses[id] = addr
		}
	}
	for _, a := range applied {
		if a.Reward.WalletAddress != nil {
			addresses[a.Reward.UserID] = *a.Reward.WalletAddress
		}
	}
	return addresses, nil
}

// Settle implements SettlementExecutor
func (s *OnChainSettlement) Settle(ctx context.Context, run Run, applied []Applied) error {
	batch, err := s.Plan(ctx, run, applied)
	if err != nil {
		return err
	}

	for _, userID := range batch.Skipped {
		s.logger.Warn("Skipping on-chain settlement for user without a valid wallet address",
			zap.String("user_id", userID.String()),
			zap.String("run_id", run.ID.String()))
	}

	s.logger.Info("On-chain settlement intent recorded",
		zap.String("run_id", run.ID.String()),
		zap.String("period", run.Period),
		zap.Int64("chain_id", batch.ChainID),
		zap.Int("transfers", len(batch.Transfers)),
		zap.Int("skipped", len(batch.Skipped)),
		zap.String("total_wei", batch.Total().String()),
		zap.String("batch_hash", batch.Hash.Hex()))

	return nil
}
