package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/services/submitter"
)

type scriptedPoller struct {
	observations []Observation
	errs         []error
	calls        int
}

func (s *scriptedPoller) Poll(_ context.Context, _ domain.SubmissionHandle) (Observation, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Observation{}, s.errs[i]
	}
	if i >= len(s.observations) {
		return Observation{State: domain.StateSubmitted}, nil
	}
	return s.observations[i], nil
}

func handleFixture() domain.SubmissionHandle {
	return domain.SubmissionHandle{Kind: domain.SubmitDirect, Signature: solana.Signature{1}}
}

func TestAwaitReachesFinalized(t *testing.T) {
	poller := &scriptedPoller{observations: []Observation{
		{State: domain.StateSubmitted},
		{State: domain.StateSubmitted},
		{State: domain.StateFinalized},
	}}

	state, err := New(5, 0).Await(context.Background(), poller, handleFixture())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if state != domain.StateFinalized {
		t.Fatalf("expected finalized, got %s", state)
	}
	if poller.calls != 3 {
		t.Fatalf("expected polling to stop at finalization, got %d polls", poller.calls)
	}
}

func TestAwaitSurfacesOnChainFailure(t *testing.T) {
	poller := &scriptedPoller{observations: []Observation{
		{State: domain.StateProcessed},
		{State: domain.StateFailed, Err: "custom program error: 0x1771"},
	}}

	state, err := New(5, 0).Await(context.Background(), poller, handleFixture())
	if state != domain.StateFailed {
		t.Fatalf("expected failed, got %s", state)
	}
	if !errors.Is(err, common.ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
}

func TestAwaitExpiresAfterWindow(t *testing.T) {
	poller := &scriptedPoller{}
	state, err := New(4, 0).Await(context.Background(), poller, handleFixture())
	if state != domain.StateExpired {
		t.Fatalf("expected expired, got %s", state)
	}
	if !errors.Is(err, common.ErrConfirmationExpired) {
		t.Fatalf("expected ErrConfirmationExpired, got %v", err)
	}
	if poller.calls != 4 {
		t.Fatalf("expected exactly 4 polls, got %d", poller.calls)
	}
}

func TestAwaitPollErrorConsumesAttempt(t *testing.T) {
	poller := &scriptedPoller{errs: []error{
		errors.New("rpc timeout"),
		errors.New("rpc timeout"),
	}}
	state, err := New(2, 0).Await(context.Background(), poller, handleFixture())
	if state != domain.StateExpired {
		t.Fatalf("expected expired, got %s", state)
	}
	if !errors.Is(err, common.ErrConfirmationExpired) {
		t.Fatalf("expected ErrConfirmationExpired, got %v", err)
	}
}

func TestAwaitNeverRegresses(t *testing.T) {
	poller := &scriptedPoller{observations: []Observation{
		{State: domain.StateConfirmed},
		{State: domain.StateProcessed},
		{State: domain.StateFinalized},
	}}
	state, err := New(3, 0).Await(context.Background(), poller, handleFixture())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if state != domain.StateFinalized {
		t.Fatalf("expected finalized, got %s", state)
	}
}

type fakeStatusSource struct {
	value []*rpc.SignatureStatusesResult
	err   error
}

func (f *fakeStatusSource) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetSignatureStatusesResult{Value: f.value}, nil
}

func TestSignaturePollerMapsStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status *rpc.SignatureStatusesResult
		want   domain.ConfirmationState
	}{
		{"unknown", nil, domain.StateSubmitted},
		{"processed", &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed}, domain.StateProcessed},
		{"confirmed", &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}, domain.StateConfirmed},
		{"finalized", &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusFinalized}, domain.StateFinalized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			poller := NewSignaturePoller(&fakeStatusSource{value: []*rpc.SignatureStatusesResult{tc.status}})
			obs, err := poller.Poll(context.Background(), handleFixture())
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if obs.State != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, obs.State)
			}
		})
	}
}

func TestSignaturePollerReportsExecutionError(t *testing.T) {
	poller := NewSignaturePoller(&fakeStatusSource{value: []*rpc.SignatureStatusesResult{
		{Err: map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}},
	}})
	obs, err := poller.Poll(context.Background(), handleFixture())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if obs.State != domain.StateFailed || obs.Err == "" {
		t.Fatalf("expected failed observation with error text, got %+v", obs)
	}
}

type fakeBundleSource struct {
	statuses []submitter.BundleStatus
	err      error
}

func (f *fakeBundleSource) GetBundleStatuses(_ context.Context, _ []string) ([]submitter.BundleStatus, error) {
	return f.statuses, f.err
}

func TestBundlePollerMapsStatuses(t *testing.T) {
	handle := domain.SubmissionHandle{Kind: domain.SubmitBundled, Signature: solana.Signature{1}, BundleID: "b-1"}

	cases := []struct {
		name     string
		statuses []submitter.BundleStatus
		want     domain.ConfirmationState
	}{
		{"unknown bundle", nil, domain.StateSubmitted},
		{"other bundle only", []submitter.BundleStatus{{BundleID: "b-9", ConfirmationStatus: "finalized"}}, domain.StateSubmitted},
		{"confirmed", []submitter.BundleStatus{{BundleID: "b-1", ConfirmationStatus: "confirmed"}}, domain.StateConfirmed},
		{"finalized", []submitter.BundleStatus{{BundleID: "b-1", ConfirmationStatus: "finalized"}}, domain.StateFinalized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs, err := NewBundlePoller(&fakeBundleSource{statuses: tc.statuses}).Poll(context.Background(), handle)
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if obs.State != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, obs.State)
			}
		})
	}
}

func TestBundlePollerReportsOnChainFailure(t *testing.T) {
	handle := domain.SubmissionHandle{Kind: domain.SubmitBundled, Signature: solana.Signature{1}, BundleID: "b-1"}

	var status submitter.BundleStatus
	raw := `{"bundle_id":"b-1","confirmation_status":"processed","err":{"Err":{"InstructionError":[2,{"Custom":6001}]}}}`
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	obs, err := NewBundlePoller(&fakeBundleSource{statuses: []submitter.BundleStatus{status}}).Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if obs.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", obs.State)
	}
	if obs.Err == "" {
		t.Fatalf("expected the relay's transaction error to be surfaced")
	}
}

func TestBundlePollerMapsFailedStatus(t *testing.T) {
	handle := domain.SubmissionHandle{Kind: domain.SubmitBundled, Signature: solana.Signature{1}, BundleID: "b-1"}

	statuses := []submitter.BundleStatus{{BundleID: "b-1", ConfirmationStatus: "failed"}}
	obs, err := NewBundlePoller(&fakeBundleSource{statuses: statuses}).Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if obs.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", obs.State)
	}
}
