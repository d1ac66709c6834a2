package submit

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/solana"
	"solana-perp-engine/internal/txbuild"
)

// fakeRPC scripts per-call results for the submitter.
type fakeRPC struct {
	sendResults []error // nil entry means success
	sendCalls   int

	statusScript [][]*solana.SignatureStatus
	statusCalls  int

	height    uint64
	heightErr error
}

func (f *fakeRPC) GetLatestBlockhash(context.Context) (*solana.LatestBlockhash, error) {
	return &solana.LatestBlockhash{Blockhash: "hash", LastValidBlockHeight: 100}, nil
}

func (f *fakeRPC) GetBlockHeight(context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeRPC) SendTransaction(context.Context, []byte) (string, error) {
	i := f.sendCalls
	f.sendCalls++
	if i >= len(f.sendResults) {
		i = len(f.sendResults) - 1
	}
	if err := f.sendResults[i]; err != nil {
		return "", err
	}
	return "sig111", nil
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, []string) ([]*solana.SignatureStatus, error) {
	i := f.statusCalls
	f.statusCalls++
	if len(f.statusScript) == 0 {
		return []*solana.SignatureStatus{nil}, nil
	}
	if i >= len(f.statusScript) {
		i = len(f.statusScript) - 1
	}
	return f.statusScript[i], nil
}

func (f *fakeRPC) GetAccountInfo(context.Context, string) (*solana.AccountInfo, error) {
	return nil, nil
}

// sleepRecorder captures retry pauses instead of waiting them out.
func sleepRecorder(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func testBundle() *domain.SignedBundle {
	return &domain.SignedBundle{Payload: []byte{1, 2, 3}, Signature: "sig111", LastValidHeight: 100}
}

func notReadyErr() error {
	return &solana.RPCError{Code: 6001, Message: "custom program error: 0x1771"}
}

func TestSubmit_TransientRetriedExactlyThreeTimes(t *testing.T) {
	rpc := &fakeRPC{sendResults: []error{notReadyErr(), notReadyErr(), notReadyErr()}}
	var delays []time.Duration
	s := NewSubmitter(rpc, zerolog.Nop())
	s.sleep = sleepRecorder(&delays)

	_, err := s.Submit(context.Background(), testBundle())
	if !errors.Is(err, ErrPositionNotReady) {
		t.Fatalf("expected ErrPositionNotReady after exhaustion, got %v", err)
	}
	if rpc.sendCalls != TransientRetryAttempts {
		t.Errorf("send calls = %d, want %d", rpc.sendCalls, TransientRetryAttempts)
	}
	// Two pauses separate three attempts, each the fixed delay.
	if len(delays) != TransientRetryAttempts-1 {
		t.Fatalf("pauses = %d, want %d", len(delays), TransientRetryAttempts-1)
	}
	for i, d := range delays {
		if d != TransientRetryDelay {
			t.Errorf("pause %d = %v, want %v", i, d, TransientRetryDelay)
		}
	}
}

func TestSubmit_TransientThenSuccess(t *testing.T) {
	rpc := &fakeRPC{sendResults: []error{notReadyErr(), nil}}
	var delays []time.Duration
	s := NewSubmitter(rpc, zerolog.Nop())
	s.sleep = sleepRecorder(&delays)

	sig, err := s.Submit(context.Background(), testBundle())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sig != "sig111" {
		t.Errorf("signature = %s, want sig111", sig)
	}
	if rpc.sendCalls != 2 || len(delays) != 1 {
		t.Errorf("calls = %d pauses = %d, want 2 and 1", rpc.sendCalls, len(delays))
	}
}

func TestSubmit_NonTransientFailsImmediately(t *testing.T) {
	rpc := &fakeRPC{sendResults: []error{&solana.RPCError{Code: 6002, Message: "slippage"}}}
	var delays []time.Duration
	s := NewSubmitter(rpc, zerolog.Nop())
	s.sleep = sleepRecorder(&delays)

	_, err := s.Submit(context.Background(), testBundle())
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	if rpc.sendCalls != 1 || len(delays) != 0 {
		t.Errorf("calls = %d pauses = %d, want 1 and 0", rpc.sendCalls, len(delays))
	}
}

func TestSubmit_ExpiredAnchorNeverResubmitted(t *testing.T) {
	rpc := &fakeRPC{sendResults: []error{fmt.Errorf("BlockhashNotFound")}}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.sleep = sleepRecorder(&[]time.Duration{})

	_, err := s.Submit(context.Background(), testBundle())
	if !errors.Is(err, ErrAnchorExpired) {
		t.Fatalf("expected ErrAnchorExpired, got %v", err)
	}
	if rpc.sendCalls != 1 {
		t.Errorf("send calls = %d, want 1", rpc.sendCalls)
	}
}

func confirmedStatus() *solana.SignatureStatus {
	return &solana.SignatureStatus{ConfirmationStatus: "confirmed"}
}

func TestConfirm_PollSuccess(t *testing.T) {
	rpc := &fakeRPC{statusScript: [][]*solana.SignatureStatus{
		{nil},
		{confirmedStatus()},
	}}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	if err := s.Confirm(context.Background(), testBundle(), "sig111", time.Second); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
}

func TestConfirm_LedgerFailureClassified(t *testing.T) {
	rpc := &fakeRPC{statusScript: [][]*solana.SignatureStatus{
		{{ConfirmationStatus: "confirmed", Err: "custom program error: 0x1772"}},
	}}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	err := s.Confirm(context.Background(), testBundle(), "sig111", time.Second)
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
}

func TestConfirm_ExpiryDetectedViaBlockHeight(t *testing.T) {
	// Unknown signature and the chain already past the anchor's window.
	rpc := &fakeRPC{height: 101}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	err := s.Confirm(context.Background(), testBundle(), "sig111", time.Second)
	if !errors.Is(err, ErrAnchorExpired) {
		t.Fatalf("expected ErrAnchorExpired, got %v", err)
	}
}

func TestConfirm_TimeoutIsAmbiguous(t *testing.T) {
	// Signature stays unknown, anchor stays valid.
	rpc := &fakeRPC{height: 50}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	err := s.Confirm(context.Background(), testBundle(), "sig111", 20*time.Millisecond)
	if !errors.Is(err, ErrConfirmationAmbiguous) {
		t.Fatalf("expected ErrConfirmationAmbiguous, got %v", err)
	}
}

func TestConfirmOrVerify_ImplicitSuccessWhenPositionGone(t *testing.T) {
	rpc := &fakeRPC{height: 50}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	state, err := s.ConfirmOrVerify(context.Background(), testBundle(), "sig111", 20*time.Millisecond,
		func(context.Context) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("ConfirmOrVerify: %v", err)
	}
	if state != StateConfirmed {
		t.Errorf("state = %s, want %s", state, StateConfirmed)
	}
}

func TestConfirmOrVerify_AmbiguousWhenPositionRemains(t *testing.T) {
	rpc := &fakeRPC{height: 50}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	state, err := s.ConfirmOrVerify(context.Background(), testBundle(), "sig111", 20*time.Millisecond,
		func(context.Context) (bool, error) { return true, nil })
	if !errors.Is(err, ErrConfirmationAmbiguous) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	if state != StateSubmitted {
		t.Errorf("state = %s, want %s", state, StateSubmitted)
	}
}

func TestConfirmOrVerify_ExpiredReported(t *testing.T) {
	rpc := &fakeRPC{height: 101}
	s := NewSubmitter(rpc, zerolog.Nop())
	s.pollInterval = time.Millisecond

	state, err := s.ConfirmOrVerify(context.Background(), testBundle(), "sig111", time.Second,
		func(context.Context) (bool, error) { return true, nil })
	if !errors.Is(err, ErrAnchorExpired) {
		t.Fatalf("expected ErrAnchorExpired, got %v", err)
	}
	if state != StateExpired {
		t.Errorf("state = %s, want %s", state, StateExpired)
	}
}

// fakeSigner signs with a throwaway ed25519 key.
type fakeSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &fakeSigner{pub: pub, priv: priv}
}

func (f *fakeSigner) PublicKey() txbuild.PublicKey {
	var pk txbuild.PublicKey
	copy(pk[:], f.pub)
	return pk
}

func (f *fakeSigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	return ed25519.Sign(f.priv, message), nil
}

func TestSign_AssemblesBundle(t *testing.T) {
	signer := newFakeSigner(t)
	s := NewSubmitter(&fakeRPC{}, zerolog.Nop())

	unsigned := &txbuild.UnsignedBundle{
		Message: []byte{9, 9, 9},
		Anchor:  txbuild.Anchor{Blockhash: "anchor-hash", LastValidHeight: 42},
	}
	bundle, err := s.Sign(context.Background(), signer, unsigned)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if bundle.Blockhash != "anchor-hash" || bundle.LastValidHeight != 42 {
		t.Errorf("anchor not carried: %+v", bundle)
	}

	sig, err := base58.Decode(bundle.Signature)
	if err != nil || len(sig) != 64 {
		t.Fatalf("signature not a base58 64-byte value: %v", err)
	}
	if !ed25519.Verify(signer.pub, unsigned.Message, sig) {
		t.Error("signature does not verify over the message")
	}
	// Payload is compact sig count, signature, then the message.
	if bundle.Payload[0] != 1 || len(bundle.Payload) != 1+64+len(unsigned.Message) {
		t.Errorf("unexpected payload layout, len %d", len(bundle.Payload))
	}
}
