package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func TestWalletCreditDebit(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	r := f.reporters(t, 1)[0]

	entry := LedgerEntry{
		UserID:        r.ID,
		UserType:      r.Role,
		Amount:        decimal.NewFromInt(250),
		Description:   "bonus",
		CorrelationID: "bonus-1",
	}
	_, err := f.svc.Credit(ctx, entry)
	require.NoError(err)
	_, err = f.svc.Credit(ctx, entry)
	require.ErrorIs(err, ErrDuplicateTransaction)

	_, err = f.svc.Debit(ctx, LedgerEntry{UserID: r.ID, UserType: r.Role, Amount: decimal.NewFromInt(300), Description: "too much"})
	require.ErrorIs(err, ErrInsufficientBalance)

	_, err = f.svc.Debit(ctx, LedgerEntry{UserID: r.ID, UserType: r.Role, Amount: decimal.Zero})
	require.ErrorIs(err, ErrValidation)

	w, err := f.svc.Debit(ctx, LedgerEntry{UserID: r.ID, UserType: r.Role, Amount: decimal.NewFromInt(100), Description: "fee"})
	require.NoError(err)
	requireDecimal(t, "150", w.Balance)
	require.Len(w.Transactions, 2)
	require.NoError(f.svc.Reconcile(ctx, r.ID, r.Role))

	// Wallets are keyed by user type as well as user id.
	balance, err := f.svc.Balance(ctx, r.ID, models.RoleInfluencer)
	require.NoError(err)
	requireDecimal(t, "0", balance)
}

func TestWalletHistoryNewestFirst(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	r := f.reporters(t, 1)[0]

	for i := 1; i <= 3; i++ {
		_, err := f.svc.Credit(ctx, LedgerEntry{UserID: r.ID, UserType: r.Role, Amount: decimal.NewFromInt(int64(i)), Description: "credit"})
		require.NoError(err)
		f.clock.Advance(time.Minute)
	}

	page, err := f.svc.History(ctx, r.ID, r.Role, 1, 2)
	require.NoError(err)
	require.Equal(3, page.Total)
	require.Len(page.Transactions, 2)
	requireDecimal(t, "3", page.Transactions[0].Amount)
	requireDecimal(t, "6", page.Balance)

	page, err = f.svc.History(ctx, r.ID, r.Role, 2, 2)
	require.NoError(err)
	require.Len(page.Transactions, 1)
	requireDecimal(t, "1", page.Transactions[0].Amount)

	empty, err := f.svc.History(ctx, f.admin.ID, models.RoleAdmin, 1, 10)
	require.NoError(err)
	require.Empty(empty.Transactions)
}

func TestRequestWithdrawal(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	r := f.reporters(t, 1)[0]
	f.fund(t, r, 500)

	bank := models.BankDetails{AccountHolder: "R Singh", AccountNumber: "00112233", IFSC: "PUNB0001"}
	_, err := f.svc.RequestWithdrawal(ctx, r, decimal.NewFromInt(50), bank)
	require.ErrorIs(err, ErrValidation)

	owner := f.user(t, models.RoleAdvertiser, "Punjab", "Ludhiana")
	_, err = f.svc.RequestWithdrawal(ctx, owner, decimal.NewFromInt(200), bank)
	require.ErrorIs(err, ErrForbidden)

	_, err = f.svc.RequestWithdrawal(ctx, r, decimal.NewFromInt(800), bank)
	require.ErrorIs(err, ErrInsufficientBalance)

	w, err := f.svc.RequestWithdrawal(ctx, r, decimal.NewFromInt(200), bank)
	require.NoError(err)
	requireDecimal(t, "300", w.Balance)
	last := w.Transactions[len(w.Transactions)-1]
	require.Equal(models.TransactionDebit, last.Type)
	require.NotNil(last.BankDetails)
	require.Equal("PUNB0001", last.BankDetails.IFSC)
	require.NoError(f.svc.Reconcile(ctx, r.ID, r.Role))
}

func TestVerifyTopUp(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, models.RoleAdvertiser, "Punjab", "Ludhiana")

	orderID, err := f.svc.CreateTopUpOrder(ctx, owner, decimal.NewFromInt(500))
	require.NoError(err)
	require.NotEmpty(orderID)

	f.gateway.add(models.GatewayPayment{ID: "pay_created", OrderID: orderID, Status: "created", Amount: decimal.NewFromInt(500)})
	_, err = f.svc.VerifyTopUp(ctx, owner, GatewayProof{OrderID: orderID, PaymentID: "pay_created"})
	require.ErrorIs(err, ErrPaymentNotCaptured)

	f.gateway.add(models.GatewayPayment{ID: "pay_ok", OrderID: orderID, Status: "captured", Method: "upi", Amount: decimal.NewFromInt(500)})
	_, err = f.svc.VerifyTopUp(ctx, owner, GatewayProof{OrderID: "order_other", PaymentID: "pay_ok"})
	require.ErrorIs(err, ErrValidation)

	w, err := f.svc.VerifyTopUp(ctx, owner, GatewayProof{OrderID: orderID, PaymentID: "pay_ok"})
	require.NoError(err)
	requireDecimal(t, "500", w.Balance)

	_, err = f.svc.VerifyTopUp(ctx, owner, GatewayProof{OrderID: orderID, PaymentID: "pay_ok"})
	require.ErrorIs(err, ErrConflict)

	balance, err := f.svc.Balance(ctx, owner.ID, owner.Role)
	require.NoError(err)
	requireDecimal(t, "500", balance)

	_, err = f.svc.VerifyTopUp(ctx, owner, GatewayProof{PaymentID: "pay_missing"})
	require.ErrorIs(err, ErrExternal)
}

func TestViewCountFailureIsNotAnError(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	owner := f.user(t, models.RoleAdvertiser, "Punjab", "Ludhiana")
	f.fund(t, owner, 200)
	r := f.reporters(t, 1)[0]
	ad := createAd(t, f, owner, 1000)
	_, err := f.svc.ReviewAd(ctx, f.admin, ad.ID, ReviewInput{Action: ActionApprove, Note: "ok"})
	require.NoError(err)
	_, err = f.svc.AcceptAd(ctx, r, ad.ID)
	require.NoError(err)
	_, err = f.svc.SubmitInitialProof(ctx, r, ad.ID, proofInput())
	require.NoError(err)
	_, err = f.svc.ReviewInitialProof(ctx, f.admin, ad.ID, r.ID, true, "")
	require.NoError(err)

	f.views.err = context.DeadlineExceeded
	res, err := f.svc.SubmitCompletionProof(ctx, r, ad.ID, CompletionInput{Screenshot: screenshot()})
	require.NoError(err)
	require.False(res.Completed)
	require.NotEmpty(res.Message)

	report, err := f.svc.AdViewReport(ctx, owner, ad.ID)
	require.NoError(err)
	require.Len(report.Rows, 1)
	require.False(report.Rows[0].Available)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	r := f.reporters(t, 1)[0]
	f.fund(t, r, 500)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Debit(ctx, LedgerEntry{UserID: r.ID, UserType: r.Role, Amount: decimal.NewFromInt(100), Description: "fee"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ok++
		}()
	}
	wg.Wait()

	require.Equal(5, ok)
	require.Len(errs, 15)
	for _, err := range errs {
		require.ErrorIs(err, ErrInsufficientBalance)
	}
	balance, err := f.svc.Balance(ctx, r.ID, r.Role)
	require.NoError(err)
	require.False(balance.IsNegative())
	requireDecimal(t, "0", balance)
	require.NoError(f.svc.Reconcile(ctx, r.ID, r.Role))
}
