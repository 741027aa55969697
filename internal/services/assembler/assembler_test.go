package assembler

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
)

type fakeResolver struct {
	tables map[solana.PublicKey]solana.PublicKeySlice
	err    error
	calls  int
}

func (f *fakeResolver) Resolve(_ context.Context, table solana.PublicKey) (solana.PublicKeySlice, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	addresses, ok := f.tables[table]
	if !ok {
		return nil, errors.New("account not found")
	}
	return addresses, nil
}

func encodedIx(programID solana.PublicKey, data []byte, accounts ...solana.PublicKey) domain.EncodedInstruction {
	metas := make([]domain.EncodedAccountMeta, 0, len(accounts))
	for i, acc := range accounts {
		metas = append(metas, domain.EncodedAccountMeta{
			Pubkey:     acc.String(),
			IsSigner:   i == 0,
			IsWritable: true,
		})
	}
	return domain.EncodedInstruction{
		ProgramID: programID.String(),
		Accounts:  metas,
		Data:      base64.StdEncoding.EncodeToString(data),
	}
}

func TestAssembleOrdersInstructions(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	table := solana.NewWallet().PublicKey()

	setup := encodedIx(program, []byte{1}, owner)
	swap := encodedIx(program, []byte{2}, owner)
	cleanup := encodedIx(program, []byte{3}, owner)

	resolver := &fakeResolver{tables: map[solana.PublicKey]solana.PublicKeySlice{
		table: {solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()},
	}}

	set, err := New(resolver).Assemble(context.Background(), &domain.InstructionBundle{
		SetupInstructions:  []domain.EncodedInstruction{setup},
		SwapInstruction:    &swap,
		CleanupInstruction: &cleanup,
		LookupTableAddrs:   []string{table.String()},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(set.Instructions) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(set.Instructions))
	}
	for i, want := range [][]byte{{1}, {2}, {3}} {
		data, err := set.Instructions[i].Data()
		if err != nil {
			t.Fatalf("instruction %d data: %v", i, err)
		}
		if len(data) != 1 || data[0] != want[0] {
			t.Errorf("instruction %d: expected data %v, got %v", i, want, data)
		}
	}

	if len(set.Tables) != 1 || len(set.Tables[table]) != 2 {
		t.Errorf("expected one resolved table with 2 addresses, got %v", set.Tables)
	}
	accounts := set.Instructions[0].Accounts()
	if !accounts[0].IsSigner || !accounts[0].IsWritable {
		t.Errorf("expected first setup account to be a writable signer")
	}
}

func TestAssembleWithoutCleanup(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	swap := encodedIx(program, []byte{9}, solana.NewWallet().PublicKey())

	set, err := New(&fakeResolver{}).Assemble(context.Background(), &domain.InstructionBundle{
		SwapInstruction: &swap,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(set.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(set.Instructions))
	}
}

func TestAssembleFailsOnUnresolvableTable(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	swap := encodedIx(program, []byte{1}, solana.NewWallet().PublicKey())
	resolver := &fakeResolver{err: errors.New("account not found")}

	_, err := New(resolver).Assemble(context.Background(), &domain.InstructionBundle{
		SwapInstruction:  &swap,
		LookupTableAddrs: []string{solana.NewWallet().PublicKey().String()},
	})
	if !errors.Is(err, common.ErrLookupTableUnavailable) {
		t.Fatalf("expected ErrLookupTableUnavailable, got %v", err)
	}
}

func TestAssembleRejectsMalformedInstruction(t *testing.T) {
	bad := domain.EncodedInstruction{
		ProgramID: "not-a-key",
		Data:      base64.StdEncoding.EncodeToString([]byte{1}),
	}
	_, err := New(&fakeResolver{}).Assemble(context.Background(), &domain.InstructionBundle{
		SwapInstruction: &bad,
	})
	if err == nil {
		t.Fatal("expected error for malformed program id")
	}
}

func TestAssembleEmptyBundle(t *testing.T) {
	_, err := New(&fakeResolver{}).Assemble(context.Background(), &domain.InstructionBundle{})
	if err == nil {
		t.Fatal("expected error for bundle with no instructions and no payload")
	}
}

func TestAdaptPrebuiltTransaction(t *testing.T) {
	payer := solana.NewWallet()
	dest := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()

	ix := solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer.PublicKey(), true, true),
		solana.NewAccountMeta(dest, true, false),
	}, []byte{7, 7})

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	set, err := New(&fakeResolver{}).Assemble(context.Background(), &domain.InstructionBundle{
		SwapTransactionB64: base64.StdEncoding.EncodeToString(raw),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(set.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(set.Instructions))
	}
	if !set.Instructions[0].ProgramID().Equals(program) {
		t.Errorf("program id not preserved through decompilation")
	}
	accounts := set.Instructions[0].Accounts()
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if !accounts[0].PublicKey.Equals(payer.PublicKey()) || !accounts[0].IsWritable {
		t.Errorf("payer meta not reconstructed: %+v", accounts[0])
	}
	if accounts[1].IsWritable {
		t.Errorf("readonly signer reconstructed as writable")
	}
}
