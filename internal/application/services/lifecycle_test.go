package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/application/services/testhelpers"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/infrastructure/rules"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type recordingPublisher struct {
	mu      sync.Mutex
	records []domain.TransitionRecord
}

func (p *recordingPublisher) Publish(_ context.Context, record domain.TransitionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, record)
	return nil
}

func (p *recordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

type LifecycleTestSuite struct {
	suite.Suite
	newEnv    func(publisher *recordingPublisher) *testhelpers.Env
	cleanup   func()
	env       *testhelpers.Env
	publisher *recordingPublisher
}

func TestLifecycleMemorySuite(t *testing.T) {
	suite.Run(t, &LifecycleTestSuite{
		newEnv: func(p *recordingPublisher) *testhelpers.Env {
			return testhelpers.NewMemoryEnv(p, nil)
		},
	})
}

func TestLifecyclePostgresSuite(t *testing.T) {
	testDB := testhelpers.SetupTestDatabase(t)
	defer testDB.Cleanup(t)

	suite.Run(t, &LifecycleTestSuite{
		newEnv: func(p *recordingPublisher) *testhelpers.Env {
			return testhelpers.NewEnvWithMerchants(
				postgres.NewTransactionRepository(testDB.DB),
				postgres.NewIdempotencyRepository(testDB.DB),
				testDB.Merchants(),
				p,
				nil,
				testhelpers.DefaultLifecycleConfig(),
			)
		},
		cleanup: func() { testDB.CleanTables(t) },
	})
}

// SetupTest runs before each test
func (suite *LifecycleTestSuite) SetupTest() {
	if suite.cleanup != nil {
		suite.cleanup()
	}
	suite.publisher = &recordingPublisher{}
	suite.env = suite.newEnv(suite.publisher)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	de, ok := domain.AsError(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	assert.Equal(t, code, de.Code)
}

// ============================================================================
// INIT
// ============================================================================

func (suite *LifecycleTestSuite) Test_Init_CreatesTransaction() {
	t := suite.T()
	ctx := context.Background()
	cmd := suite.env.InitCommand(1000)

	res, err := suite.env.Service.Init(ctx, cmd)
	require.NoError(t, err)

	assert.False(t, res.Existing)
	assert.Equal(t, domain.StatusCreated, res.Transaction.Status)
	assert.Equal(t, int64(1000), res.Transaction.Amount)
	assert.Equal(t, "RUB", res.Transaction.Currency)
	assert.Equal(t, 3, res.Transaction.MaxAttempts)
	assert.Equal(t, testhelpers.PaymentBaseURL+"/pay/"+res.Transaction.TransactionID, res.PaymentURL)
	assert.True(t, domain.IsTransactionID(res.Transaction.TransactionID))

	history, err := suite.env.Store.History(ctx, res.Transaction.TransactionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.Status(""), history[0].FromStatus)
	assert.Equal(t, domain.StatusCreated, history[0].ToStatus)
	assert.Equal(t, 1, suite.publisher.Count())
}

func (suite *LifecycleTestSuite) Test_Init_SameOrderReturnsOpenTransaction() {
	t := suite.T()
	ctx := context.Background()
	cmd := suite.env.InitCommand(1000)

	first, err := suite.env.Service.Init(ctx, cmd)
	require.NoError(t, err)

	second, err := suite.env.Service.Init(ctx, cmd)
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
}

func (suite *LifecycleTestSuite) Test_Init_SameOrderDifferentAmount_ReturnsDuplicateOrder() {
	t := suite.T()
	ctx := context.Background()
	cmd := suite.env.InitCommand(1000)

	_, err := suite.env.Service.Init(ctx, cmd)
	require.NoError(t, err)

	cmd.Amount = 2000
	cmd.Token = suite.env.Sign(cmd.SignedFields())
	_, err = suite.env.Service.Init(ctx, cmd)
	requireCode(t, err, domain.CodeDuplicateOrder)
}

func (suite *LifecycleTestSuite) Test_Init_AfterCancel_OpensNewTransaction() {
	t := suite.T()
	ctx := context.Background()
	cmd := suite.env.InitCommand(1000)

	first, err := suite.env.Service.Init(ctx, cmd)
	require.NoError(t, err)
	_, err = suite.env.Service.Cancel(ctx, suite.env.CancelCommand(first.Transaction.TransactionID, 0, ""))
	require.NoError(t, err)

	second, err := suite.env.Service.Init(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, second.Existing)
	assert.NotEqual(t, first.Transaction.TransactionID, second.Transaction.TransactionID)
}

func (suite *LifecycleTestSuite) Test_Init_InvalidAmount() {
	t := suite.T()
	cmd := suite.env.InitCommand(0)

	_, err := suite.env.Service.Init(context.Background(), cmd)
	requireCode(t, err, domain.CodeValidation)
}

// ============================================================================
// AUTHENTICATION
// ============================================================================

func (suite *LifecycleTestSuite) Test_Authentication_Failures() {
	ctx := context.Background()

	suite.Run("missing token", func() {
		cmd := suite.env.InitCommand(1000)
		cmd.Token = ""
		_, err := suite.env.Service.Init(ctx, cmd)
		requireCode(suite.T(), err, domain.CodeMissingToken)
	})

	suite.Run("token signed over other fields", func() {
		cmd := suite.env.InitCommand(1000)
		cmd.Amount = 5000
		_, err := suite.env.Service.Init(ctx, cmd)
		requireCode(suite.T(), err, domain.CodeInvalidToken)
	})

	suite.Run("token signed with another secret", func() {
		cmd := suite.env.InitCommand(1000)
		cmd.Token = suite.env.Auth.Sign(cmd.SignedFields(), testhelpers.OtherSecret)
		_, err := suite.env.Service.Init(ctx, cmd)
		requireCode(suite.T(), err, domain.CodeInvalidToken)
	})

	suite.Run("unknown merchant", func() {
		cmd := suite.env.InitCommand(1000)
		cmd.MerchantID = "shop-unknown"
		cmd.Token = suite.env.Sign(cmd.SignedFields())
		_, err := suite.env.Service.Init(ctx, cmd)
		requireCode(suite.T(), err, domain.CodeMerchantNotFound)
	})

	suite.Run("inactive merchant", func() {
		cmd := suite.env.InitCommand(1000)
		cmd.MerchantID = "shop-closed"
		cmd.Token = suite.env.Auth.Sign(cmd.SignedFields(), "closed")
		_, err := suite.env.Service.Init(ctx, cmd)
		requireCode(suite.T(), err, domain.CodeMerchantNotFound)
	})
}

func (suite *LifecycleTestSuite) Test_AuthenticationFailure_LeavesStateUntouched() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	cmd := suite.env.ConfirmCommand(tx.TransactionID, 0, "")
	cmd.Token = "0000"
	_, err := suite.env.Service.Confirm(ctx, cmd)
	requireCode(t, err, domain.CodeInvalidToken)

	loaded, err := suite.env.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, loaded.Status)
	assert.Equal(t, tx.Version, loaded.Version)
}

func (suite *LifecycleTestSuite) Test_OtherMerchantsTransaction_IsNotFound() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	cmd := services.ConfirmCommand{MerchantID: testhelpers.OtherMerchant, TransactionID: tx.TransactionID}
	cmd.Token = suite.env.Auth.Sign(cmd.SignedFields(), testhelpers.OtherSecret)

	_, err := suite.env.Service.Confirm(ctx, cmd)
	requireCode(t, err, domain.CodeNotFound)
}

// ============================================================================
// PROCESSOR EVENTS
// ============================================================================

func (suite *LifecycleTestSuite) Test_ProcessorEvents_ReachAuthorized() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	assert.Equal(t, int64(1000), tx.AuthorizedAmount)
	assert.NotNil(t, tx.AuthorizedAt)
	assert.Equal(t, int64(5), tx.Version)
	assert.Equal(t, 5, suite.publisher.Count())
}

func (suite *LifecycleTestSuite) Test_DeclinedAuthorization_RetriesThenRejects() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)
	id := tx.TransactionID

	for _, ev := range []services.ProcessorEvent{
		services.EventFormShown,
		services.EventVerificationStarted,
		services.EventAuthorizationStarted,
	} {
		_, err := suite.env.Service.HandleProcessorEvent(ctx, id, ev)
		require.NoError(t, err)
	}

	view, err := suite.env.Service.HandleProcessorEvent(ctx, id, services.EventAuthorizationDeclined)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorizing, view.Status)
	assert.Equal(t, 1, view.AttemptCount)

	view, err = suite.env.Service.HandleProcessorEvent(ctx, id, services.EventAuthorizationDeclined)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorizing, view.Status)
	assert.Equal(t, 2, view.AttemptCount)

	view, err = suite.env.Service.HandleProcessorEvent(ctx, id, services.EventAuthorizationDeclined)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, view.Status)
	assert.Equal(t, 3, view.AttemptCount)
	assert.NotNil(t, view.ClosedAt)

	_, err = suite.env.Service.HandleProcessorEvent(ctx, id, services.EventAuthorizationStarted)
	requireCode(t, err, domain.CodeInvalidTransition)
}

func (suite *LifecycleTestSuite) Test_ProcessorEvent_OutOfOrder() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)

	_, err := suite.env.Service.HandleProcessorEvent(ctx, tx.TransactionID, services.EventAuthorizationApproved)
	requireCode(t, err, domain.CodeInvalidTransition)

	_, err = suite.env.Service.HandleProcessorEvent(ctx, tx.TransactionID, "teleported")
	requireCode(t, err, domain.CodeValidation)
}

func (suite *LifecycleTestSuite) Test_ProcessorEvent_AfterDeadline() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)

	suite.env.Clock.Advance(suite.env.Config.TransactionTTL + time.Second)

	_, err := suite.env.Service.HandleProcessorEvent(ctx, tx.TransactionID, services.EventFormShown)
	requireCode(t, err, domain.CodeDeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrDeadlineExceeded)

	expired, err := suite.env.Coordinator.Apply(ctx, services.TransitionRequest{
		TransactionID: tx.TransactionID,
		Target:        domain.StatusExpired,
		Actor:         domain.ActorSystem,
		Reason:        domain.ReasonDeadlineSweep,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, expired.Status)
}

// ============================================================================
// CONFIRM
// ============================================================================

func (suite *LifecycleTestSuite) Test_Confirm_FullAmount() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	res, err := suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 0, ""))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, res.Status)
	assert.Equal(t, int64(1000), res.Amount)
	assert.Equal(t, tx.OrderID, res.OrderID)
	assert.Equal(t, 1, suite.env.CountRecords(t, ctx, tx.TransactionID, domain.StatusConfirming))
	assert.Equal(t, 1, suite.env.CountRecords(t, ctx, tx.TransactionID, domain.StatusConfirmed))
}

func (suite *LifecycleTestSuite) Test_Confirm_PartialAmount() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	res, err := suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 600, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.Amount)

	loaded, err := suite.env.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), loaded.AuthorizedAmount)
	assert.NotNil(t, loaded.ConfirmedAt)
}

func (suite *LifecycleTestSuite) Test_Confirm_AmountAboveAuthorized_IsRejected() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	_, err := suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 1500, ""))
	requireCode(t, err, domain.CodeAmountExceedsAuthorized)

	loaded, err := suite.env.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, loaded.Status)
	assert.Equal(t, int64(1000), loaded.AuthorizedAmount)
}

func (suite *LifecycleTestSuite) Test_Confirm_BeforeAuthorization_IsRejected() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)

	_, err := suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 0, ""))
	requireCode(t, err, domain.CodeInvalidTransition)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func (suite *LifecycleTestSuite) Test_Confirm_SameRequestID_ReplaysResult() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)
	requestID := "req-" + uuid.NewString()
	cmd := suite.env.ConfirmCommand(tx.TransactionID, 0, requestID)

	first, err := suite.env.Service.Confirm(ctx, cmd)
	require.NoError(t, err)
	published := suite.publisher.Count()

	second, err := suite.env.Service.Confirm(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, published, suite.publisher.Count())
	assert.Equal(t, 1, suite.env.CountRecords(t, ctx, tx.TransactionID, domain.StatusConfirmed))
}

func (suite *LifecycleTestSuite) Test_Confirm_SameRequestIDDifferentAmount_ReturnsDuplicate() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)
	requestID := "req-" + uuid.NewString()

	_, err := suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 1000, requestID))
	require.NoError(t, err)

	_, err = suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 500, requestID))
	requireCode(t, err, domain.CodeDuplicateOperation)
	assert.ErrorIs(t, err, domain.ErrDuplicateOperation)
}

func (suite *LifecycleTestSuite) Test_Confirm_FailureIsNotReplayed() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)
	requestID := "req-" + uuid.NewString()
	cmd := suite.env.ConfirmCommand(tx.TransactionID, 0, requestID)

	_, err := suite.env.Service.Confirm(ctx, cmd)
	requireCode(t, err, domain.CodeInvalidTransition)

	for _, ev := range []services.ProcessorEvent{
		services.EventFormShown,
		services.EventVerificationStarted,
		services.EventAuthorizationStarted,
		services.EventAuthorizationApproved,
	} {
		_, err := suite.env.Service.HandleProcessorEvent(ctx, tx.TransactionID, ev)
		require.NoError(t, err)
	}

	res, err := suite.env.Service.Confirm(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, res.Status)
}

func (suite *LifecycleTestSuite) Test_Confirm_ConcurrentRequests_OneWins() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		denied    int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.env.Service.Confirm(ctx, suite.env.ConfirmCommand(tx.TransactionID, 0, ""))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInvalidTransition):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, denied)
	assert.Equal(t, 1, suite.env.CountRecords(t, ctx, tx.TransactionID, domain.StatusConfirmed))
}

func (suite *LifecycleTestSuite) Test_Confirm_ConcurrentSameRequestID_RunsOnce() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)
	cmd := suite.env.ConfirmCommand(tx.TransactionID, 0, "req-"+uuid.NewString())

	const n = 6
	var wg sync.WaitGroup
	results := make([]*services.ConfirmResult, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = suite.env.Service.Confirm(ctx, cmd)
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.StatusConfirmed, results[i].Status)
	}
	assert.Equal(t, 1, suite.env.CountRecords(t, ctx, tx.TransactionID, domain.StatusConfirmed))
}

// ============================================================================
// CANCEL
// ============================================================================

func (suite *LifecycleTestSuite) Test_Cancel_Created() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)

	res, err := suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 0, ""))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, res.Status)
	assert.Equal(t, int64(1000), res.OriginalAmount)
	assert.Equal(t, int64(0), res.NewAmount)
}

func (suite *LifecycleTestSuite) Test_Cancel_AfterFormShown_IsRejected() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateTransaction(t, ctx, 1000)
	_, err := suite.env.Service.HandleProcessorEvent(ctx, tx.TransactionID, services.EventFormShown)
	require.NoError(t, err)

	_, err = suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 0, ""))
	requireCode(t, err, domain.CodeInvalidTransition)
}

func (suite *LifecycleTestSuite) Test_Cancel_Authorized_ReversesHold() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	res, err := suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 0, ""))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusReversed, res.Status)
	assert.Equal(t, int64(1000), res.OriginalAmount)
	assert.Equal(t, int64(0), res.NewAmount)
	assert.Equal(t, 1, suite.env.CountRecords(t, ctx, tx.TransactionID, domain.StatusReversing))
}

func (suite *LifecycleTestSuite) Test_Cancel_Authorized_PartialReversalRejected() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateAuthorizedTransaction(t, ctx, 1000)

	_, err := suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 400, ""))
	requireCode(t, err, domain.CodeInvalidTransition)
	de, _ := domain.AsError(err)
	assert.Equal(t, domain.ReasonPartialReversal, de.Reason)

	loaded, err := suite.env.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, loaded.Status)
}

func (suite *LifecycleTestSuite) Test_Cancel_Confirmed_PartialThenRemainder() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateConfirmedTransaction(t, ctx, 1000)

	partial, err := suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 400, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunding, partial.Status)
	assert.Equal(t, int64(1000), partial.OriginalAmount)
	assert.Equal(t, int64(600), partial.NewAmount)

	history, err := suite.env.Store.History(ctx, tx.TransactionID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.StatusRefunding, last.FromStatus)
	assert.Equal(t, domain.StatusRefunding, last.ToStatus)
	assert.Equal(t, domain.ReasonPartialRefund, last.ReasonCode)
	assert.Equal(t, int64(400), last.Amount)

	rest, err := suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 0, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, rest.Status)
	assert.Equal(t, int64(600), rest.OriginalAmount)
	assert.Equal(t, int64(0), rest.NewAmount)

	_, err = suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 0, ""))
	requireCode(t, err, domain.CodeInvalidTransition)
}

func (suite *LifecycleTestSuite) Test_Cancel_Confirmed_AmountAboveSettled() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateConfirmedTransaction(t, ctx, 1000)

	_, err := suite.env.Service.Cancel(ctx, suite.env.CancelCommand(tx.TransactionID, 1001, ""))
	requireCode(t, err, domain.CodeAmountExceedsAuthorized)

	loaded, err := suite.env.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, loaded.Status)
}

func (suite *LifecycleTestSuite) Test_Cancel_SameRequestID_ReplaysResult() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateConfirmedTransaction(t, ctx, 1000)
	cmd := suite.env.CancelCommand(tx.TransactionID, 300, "refund-"+uuid.NewString())

	first, err := suite.env.Service.Cancel(ctx, cmd)
	require.NoError(t, err)
	second, err := suite.env.Service.Cancel(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	loaded, err := suite.env.Store.Load(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), loaded.AuthorizedAmount)
}

// ============================================================================
// QUERIES
// ============================================================================

func (suite *LifecycleTestSuite) Test_Check_ListsOrderTransactions() {
	t := suite.T()
	ctx := context.Background()
	initCmd := suite.env.InitCommand(1000)

	first, err := suite.env.Service.Init(ctx, initCmd)
	require.NoError(t, err)
	_, err = suite.env.Service.Cancel(ctx, suite.env.CancelCommand(first.Transaction.TransactionID, 0, ""))
	require.NoError(t, err)
	suite.env.Clock.Advance(time.Second)
	_, err = suite.env.Service.Init(ctx, initCmd)
	require.NoError(t, err)

	cmd := services.CheckCommand{MerchantID: testhelpers.MerchantID, OrderID: initCmd.OrderID}
	cmd.Token = suite.env.Sign(cmd.SignedFields())

	res, err := suite.env.Service.Check(ctx, cmd)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, domain.StatusCancelled, res.Transactions[0].Status)
	assert.Equal(t, domain.StatusCreated, res.Transactions[1].Status)
}

func (suite *LifecycleTestSuite) Test_Check_UnknownOrder() {
	t := suite.T()
	cmd := services.CheckCommand{MerchantID: testhelpers.MerchantID, OrderID: "no-such-order"}
	cmd.Token = suite.env.Sign(cmd.SignedFields())

	_, err := suite.env.Service.Check(context.Background(), cmd)
	requireCode(t, err, domain.CodeNotFound)
}

func (suite *LifecycleTestSuite) Test_GetStateAndHistory() {
	t := suite.T()
	ctx := context.Background()
	tx := suite.env.CreateConfirmedTransaction(t, ctx, 1000)

	view, err := suite.env.Service.GetState(ctx, suite.env.StateCommand(tx.TransactionID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, view.Status)

	history, err := suite.env.Service.History(ctx, suite.env.StateCommand(tx.TransactionID))
	require.NoError(t, err)

	want := []domain.Status{
		domain.StatusCreated,
		domain.StatusFormShown,
		domain.StatusVerifying,
		domain.StatusAuthorizing,
		domain.StatusAuthorized,
		domain.StatusConfirming,
		domain.StatusConfirmed,
	}
	require.Len(t, history, len(want))
	for i, status := range want {
		assert.Equal(t, status, history[i].ToStatus)
		assert.Equal(t, int64(i+1), history[i].Version)
	}
}

func (suite *LifecycleTestSuite) Test_GetState_MalformedID() {
	t := suite.T()
	_, err := suite.env.Service.GetState(context.Background(), suite.env.StateCommand("not-a-uuid"))
	requireCode(t, err, domain.CodeValidation)

	_, err = suite.env.Service.GetState(context.Background(), suite.env.StateCommand(uuid.NewString()))
	requireCode(t, err, domain.CodeNotFound)
}

func TestInit_BusinessRulesVeto(t *testing.T) {
	ctx := context.Background()
	limits, err := rules.ParseLimits("RUB:10")
	require.NoError(t, err)
	env := testhelpers.NewMemoryEnv(nil, limits)

	_, err = env.Service.Init(ctx, env.InitCommand(1001))
	requireCode(t, err, domain.CodeValidation)

	result, err := env.Service.Init(ctx, env.InitCommand(1000))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, result.Transaction.Status)
}
