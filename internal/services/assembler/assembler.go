// Package assembler turns an aggregator instruction bundle into a decoded,
// lookup-table-resolved instruction set ready for sizing and building.
package assembler

import (
	"context"
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
)

// TableResolver fetches the address list of one on-chain lookup table.
type TableResolver interface {
	Resolve(ctx context.Context, table solana.PublicKey) (solana.PublicKeySlice, error)
}

// RPCTableResolver resolves lookup tables against the ledger RPC surface.
type RPCTableResolver struct {
	rpcClient *rpc.Client
}

func NewRPCTableResolver(rpcClient *rpc.Client) *RPCTableResolver {
	return &RPCTableResolver{rpcClient: rpcClient}
}

func (r *RPCTableResolver) Resolve(ctx context.Context, table solana.PublicKey) (solana.PublicKeySlice, error) {
	state, err := addresslookuptable.GetAddressLookupTable(ctx, r.rpcClient, table)
	if err != nil {
		return nil, err
	}
	if !state.IsActive() {
		return nil, fmt.Errorf("lookup table %s is deactivated", table)
	}
	return state.Addresses, nil
}

// Assembler decodes aggregator instructions and resolves every lookup table
// a route references. Output is attempt-scoped and never cached: a retry
// re-assembles from a fresh quote.
type Assembler struct {
	resolver TableResolver
}

func New(resolver TableResolver) *Assembler {
	return &Assembler{resolver: resolver}
}

// Assemble produces the ordered instruction set for one attempt. An
// unresolvable referenced table fails with ErrLookupTableUnavailable:
// an instruction that indexes into a dropped table would compile into a
// malformed or semantically wrong transaction.
func (a *Assembler) Assemble(ctx context.Context, bundle *domain.InstructionBundle) (*domain.InstructionSet, error) {
	if bundle.SwapInstruction == nil {
		return a.adaptPrebuilt(ctx, bundle)
	}

	instructions := make([]solana.Instruction, 0, len(bundle.SetupInstructions)+2)
	for i := range bundle.SetupInstructions {
		ix, err := decodeInstruction(&bundle.SetupInstructions[i])
		if err != nil {
			return nil, fmt.Errorf("setup instruction %d: %w", i, err)
		}
		instructions = append(instructions, ix)
	}

	swapIx, err := decodeInstruction(bundle.SwapInstruction)
	if err != nil {
		return nil, fmt.Errorf("swap instruction: %w", err)
	}
	instructions = append(instructions, swapIx)

	if bundle.CleanupInstruction != nil {
		cleanupIx, err := decodeInstruction(bundle.CleanupInstruction)
		if err != nil {
			return nil, fmt.Errorf("cleanup instruction: %w", err)
		}
		instructions = append(instructions, cleanupIx)
	}

	tables, err := a.resolveTables(ctx, bundle.LookupTableAddrs)
	if err != nil {
		return nil, err
	}

	return &domain.InstructionSet{
		Instructions: instructions,
		Tables:       tables,
	}, nil
}

func (a *Assembler) resolveTables(ctx context.Context, addrs []string) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	tables := make(map[solana.PublicKey]solana.PublicKeySlice, len(addrs))
	for _, addr := range addrs {
		key, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid table address %q", common.ErrLookupTableUnavailable, addr)
		}
		addresses, err := a.resolver.Resolve(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("table", addr).Msg("[assembler] lookup table fetch failed")
			return nil, fmt.Errorf("%w: %s: %v", common.ErrLookupTableUnavailable, addr, err)
		}
		tables[key] = addresses
	}
	return tables, nil
}

// adaptPrebuilt handles the aggregator's alternative response shape: a
// single opaque signed-format transaction payload. It is decomposed back
// into instructions plus table addresses so the rest of the pipeline only
// ever sees the structured shape.
func (a *Assembler) adaptPrebuilt(ctx context.Context, bundle *domain.InstructionBundle) (*domain.InstructionSet, error) {
	if bundle.SwapTransactionB64 == "" {
		return nil, fmt.Errorf("instruction bundle contains neither instructions nor a transaction payload")
	}

	raw, err := base64.StdEncoding.DecodeString(bundle.SwapTransactionB64)
	if err != nil {
		return nil, fmt.Errorf("malformed transaction payload: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("undecodable transaction payload: %w", err)
	}

	msg := &tx.Message

	tableAddrs := make([]string, 0, len(msg.AddressTableLookups))
	for _, lu := range msg.AddressTableLookups {
		tableAddrs = append(tableAddrs, lu.AccountKey.String())
	}
	tables, err := a.resolveTables(ctx, tableAddrs)
	if err != nil {
		return nil, err
	}

	keys, flags, err := orderedKeys(msg, tables)
	if err != nil {
		return nil, err
	}

	instructions := make([]solana.Instruction, 0, len(msg.Instructions))
	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", i, ci.ProgramIDIndex)
		}
		metas := make([]*solana.AccountMeta, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			metas = append(metas, &solana.AccountMeta{
				PublicKey:  keys[idx],
				IsSigner:   flags[idx].signer,
				IsWritable: flags[idx].writable,
			})
		}
		instructions = append(instructions, solana.NewInstruction(keys[ci.ProgramIDIndex], metas, []byte(ci.Data)))
	}

	return &domain.InstructionSet{
		Instructions: instructions,
		Tables:       tables,
	}, nil
}

type keyFlags struct {
	signer   bool
	writable bool
}

// orderedKeys reconstructs the runtime account ordering of a v0 message:
// static keys, then writable lookup loads, then readonly lookup loads.
// Lookup-loaded accounts are never signers.
func orderedKeys(msg *solana.Message, tables map[solana.PublicKey]solana.PublicKeySlice) ([]solana.PublicKey, []keyFlags, error) {
	numStatic := len(msg.AccountKeys)
	numSigners := int(msg.Header.NumRequiredSignatures)
	numReadonlySigned := int(msg.Header.NumReadonlySignedAccounts)
	numReadonlyUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	keys := make([]solana.PublicKey, 0, numStatic)
	flags := make([]keyFlags, 0, numStatic)

	for i, key := range msg.AccountKeys {
		signer := i < numSigners
		var writable bool
		if signer {
			writable = i < numSigners-numReadonlySigned
		} else {
			writable = i < numStatic-numReadonlyUnsigned
		}
		keys = append(keys, key)
		flags = append(flags, keyFlags{signer: signer, writable: writable})
	}

	appendLoads := func(writable bool) error {
		for _, lu := range msg.AddressTableLookups {
			table, ok := tables[lu.AccountKey]
			if !ok {
				return fmt.Errorf("%w: %s", common.ErrLookupTableUnavailable, lu.AccountKey)
			}
			indexes := lu.WritableIndexes
			if !writable {
				indexes = lu.ReadonlyIndexes
			}
			for _, idx := range indexes {
				if int(idx) >= len(table) {
					return fmt.Errorf("%w: %s: index %d beyond table of %d entries",
						common.ErrLookupTableUnavailable, lu.AccountKey, idx, len(table))
				}
				keys = append(keys, table[idx])
				flags = append(flags, keyFlags{signer: false, writable: writable})
			}
		}
		return nil
	}

	if err := appendLoads(true); err != nil {
		return nil, nil, err
	}
	if err := appendLoads(false); err != nil {
		return nil, nil, err
	}
	return keys, flags, nil
}

func decodeInstruction(enc *domain.EncodedInstruction) (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(enc.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", enc.ProgramID, err)
	}

	metas := make([]*solana.AccountMeta, 0, len(enc.Accounts))
	for _, acc := range enc.Accounts {
		key, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid account key %q: %w", acc.Pubkey, err)
		}
		metas = append(metas, &solana.AccountMeta{
			PublicKey:  key,
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		})
	}

	data, err := base64.StdEncoding.DecodeString(enc.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction data: %w", err)
	}

	return solana.NewInstruction(programID, metas, data), nil
}
