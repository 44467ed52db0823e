package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		kind     AssignmentKind
		from, to AssignmentStatus
		want     bool
	}{
		{KindAd, AssignmentPending, AssignmentAccepted, true},
		{KindAd, AssignmentPending, AssignmentCompleted, false},
		{KindAd, AssignmentAccepted, AssignmentSubmitted, true},
		{KindAd, AssignmentSubmitted, AssignmentProofSubmitted, true},
		{KindAd, AssignmentProofSubmitted, AssignmentCompleted, true},
		{KindAd, AssignmentProofRejected, AssignmentSubmitted, true},
		{KindAd, AssignmentCompleted, AssignmentRejected, false},
		{KindAd, AssignmentRejected, AssignmentAccepted, false},
		{KindFreeConference, AssignmentAccepted, AssignmentCompleted, true},
		{KindFreeConference, AssignmentAccepted, AssignmentRejected, false},
		{KindFreeConference, AssignmentRejected, AssignmentPending, true},
		{KindPaidConference, AssignmentAccepted, AssignmentRejected, true},
		{KindPaidConference, AssignmentCompleted, AssignmentAccepted, false},
	}
	for _, tt := range tests {
		require.Equalf(t, tt.want, CanTransition(tt.kind, tt.from, tt.to), "%s: %s -> %s", tt.kind, tt.from, tt.to)
	}
}

func TestCanTransitionProof(t *testing.T) {
	require := require.New(t)

	require.True(CanTransitionProof("", ProofPending))
	require.False(CanTransitionProof("", ProofApproved))
	require.True(CanTransitionProof(ProofRejected, ProofPending))
	require.True(CanTransitionProof(ProofApproved, ProofSubmitted))
	require.False(CanTransitionProof(ProofPending, ProofSubmitted))
	require.False(CanTransitionProof(ProofCompleted, ProofPending))
}

func TestSourcesFor(t *testing.T) {
	require.ElementsMatch(t,
		[]AssignmentStatus{AssignmentPending, AssignmentAccepted, AssignmentSubmitted},
		SourcesFor(KindAd, AssignmentRejected))
	require.Empty(t, SourcesFor(KindFreeConference, AssignmentSubmitted))
}

func TestWalletLedgerSum(t *testing.T) {
	require := require.New(t)

	w := Wallet{Transactions: []WalletTransaction{
		{Type: TransactionCredit, Amount: decimal.NewFromInt(500), Status: TransactionStatusSuccess},
		{Type: TransactionDebit, Amount: decimal.NewFromInt(120), Status: TransactionStatusSuccess},
		{Type: TransactionCredit, Amount: decimal.NewFromInt(999), Status: TransactionStatusFailed},
	}}
	require.Equal("380", w.LedgerSum().String())

	w.Transactions[0].CorrelationID = "topup-1"
	require.True(w.HasCorrelation("topup-1"))
	require.False(w.HasCorrelation("topup-2"))
}
