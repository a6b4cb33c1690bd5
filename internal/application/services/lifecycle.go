package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/application"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/config"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/domain"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/idempotency"
	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
)

const (
	operationConfirm = "confirm"
	operationCancel  = "cancel"
)

// LifecycleService is the merchant entry point: every call is authenticated
// first, then resolved into transitions applied by the Coordinator.
type LifecycleService struct {
	store          application.TransactionStore
	merchants      application.MerchantAccountLookup
	auth           *security.TokenAuthenticator
	coordinator    *Coordinator
	rules          application.BusinessRuleHook
	confirmGuard   *idempotency.Guard[ConfirmResult]
	cancelGuard    *idempotency.Guard[CancelResult]
	cfg            config.LifecycleConfig
	paymentBaseURL string
	logger         *slog.Logger
}

func NewLifecycleService(
	store application.TransactionStore,
	merchants application.MerchantAccountLookup,
	auth *security.TokenAuthenticator,
	coordinator *Coordinator,
	idempotencyStore idempotency.Store,
	rules application.BusinessRuleHook,
	cfg config.LifecycleConfig,
	paymentBaseURL string,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		store:          store,
		merchants:      merchants,
		auth:           auth,
		coordinator:    coordinator,
		rules:          rules,
		confirmGuard:   idempotency.NewGuard[ConfirmResult](idempotencyStore, cfg.IdempotencyTTL, logger).WithClock(coordinator.Now),
		cancelGuard:    idempotency.NewGuard[CancelResult](idempotencyStore, cfg.IdempotencyTTL, logger).WithClock(coordinator.Now),
		cfg:            cfg,
		paymentBaseURL: strings.TrimRight(paymentBaseURL, "/"),
		logger:         logger,
	}
}

// Init opens a transaction for an order. An open transaction for the same
// order and amount is returned instead of creating a second one.
func (s *LifecycleService) Init(ctx context.Context, cmd InitCommand) (*InitResult, error) {
	if cmd.MerchantID == "" {
		return nil, domain.NewMissingRequiredFieldError("merchantId")
	}
	if cmd.OrderID == "" {
		return nil, domain.NewMissingRequiredFieldError("orderId")
	}
	if err := s.authenticate(ctx, cmd.MerchantID, cmd.SignedFields(), cmd.Token); err != nil {
		return nil, err
	}

	currency := cmd.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	money, err := domain.NewMoney(cmd.Amount, currency)
	if err != nil {
		return nil, domain.NewValidationError("invalid amount", err)
	}

	if s.rules != nil {
		check := application.InitCheck{
			MerchantID: cmd.MerchantID,
			OrderID:    cmd.OrderID,
			Amount:     money.Amount,
			Currency:   money.Currency,
		}
		if err := s.rules.ValidateInit(ctx, check); err != nil {
			s.logger.Info("init rejected by business rules",
				"merchant_id", cmd.MerchantID,
				"order_id", cmd.OrderID,
				"error", err,
			)
			return nil, err
		}
	}

	var result *InitResult
	orderKey := "order:" + cmd.MerchantID + ":" + cmd.OrderID
	err = s.coordinator.WithLease(ctx, orderKey, func(ctx context.Context) error {
		existing, err := s.openTransactionForOrder(ctx, cmd.MerchantID, cmd.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Amount != money.Amount || existing.Currency != money.Currency {
				return domain.NewDuplicateOrderError(cmd.OrderID)
			}
			result = s.initResult(existing, true)
			return nil
		}

		now := s.coordinator.Now()
		tx, err := domain.NewTransaction(
			domain.NewTransactionID(),
			cmd.MerchantID,
			cmd.OrderID,
			money,
			s.cfg.MaxAttempts,
			now,
			now.Add(s.cfg.TransactionTTL),
		)
		if err != nil {
			return domain.NewValidationError("invalid transaction", err)
		}
		tx.Description = cmd.Description

		if err := s.coordinator.Create(ctx, tx, domain.ActorMerchant); err != nil {
			return err
		}
		result = s.initResult(tx, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LifecycleService) openTransactionForOrder(ctx context.Context, merchantID, orderID string) (*domain.Transaction, error) {
	txs, err := s.store.FindByOrder(ctx, merchantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("find transactions for order: %w", err)
	}
	now := s.coordinator.Now()
	for _, tx := range txs {
		if tx.Status.IsTerminal() {
			continue
		}
		// pending past its deadline; the sweep will expire it
		if tx.Status.IsPending() && now.After(tx.ExpiresAt) {
			continue
		}
		return tx, nil
	}
	return nil, nil
}

func (s *LifecycleService) initResult(tx *domain.Transaction, existing bool) *InitResult {
	r := &InitResult{Transaction: NewTransactionView(tx), Existing: existing}
	if s.paymentBaseURL != "" {
		r.PaymentURL = s.paymentBaseURL + "/pay/" + tx.ID
	}
	return r
}

// Confirm settles an authorized transaction. Amount zero settles the full
// authorized amount. With an ExternalRequestID, retries replay the first
// outcome.
func (s *LifecycleService) Confirm(ctx context.Context, cmd ConfirmCommand) (*ConfirmResult, error) {
	if err := validateTransactionCommand(cmd.MerchantID, cmd.TransactionID, cmd.Amount); err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx, cmd.MerchantID, cmd.SignedFields(), cmd.Token); err != nil {
		return nil, err
	}

	op := func(ctx context.Context) (ConfirmResult, error) {
		return s.confirm(ctx, cmd)
	}
	if cmd.ExternalRequestID == "" {
		r, err := op(ctx)
		if err != nil {
			return nil, err
		}
		return &r, nil
	}

	key := idempotency.Key(cmd.MerchantID, operationConfirm, cmd.ExternalRequestID)
	fingerprint := ComputeHash(confirmFingerprint{TransactionID: cmd.TransactionID, Amount: cmd.Amount})
	r, cached, err := s.confirmGuard.GetOrCompute(ctx, key, fingerprint, s.cfg.IdempotencyTTL, op)
	if err != nil {
		return nil, err
	}
	if cached {
		s.logger.Info("confirm replayed from idempotency record", "key", key, "transaction_id", r.TransactionID)
	}
	return &r, nil
}

func (s *LifecycleService) confirm(ctx context.Context, cmd ConfirmCommand) (ConfirmResult, error) {
	confirmed, err := s.applyPlanned(ctx, s.ownedLoader(cmd.MerchantID, cmd.TransactionID), func(tx *domain.Transaction) ([]TransitionRequest, error) {
		return confirmSteps(tx, cmd.Amount)
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	return ConfirmResult{
		MerchantID:    confirmed.MerchantID,
		OrderID:       confirmed.MerchantOrderID,
		TransactionID: confirmed.ID,
		Status:        confirmed.Status,
		Amount:        confirmed.AuthorizedAmount,
	}, nil
}

// confirmSteps settles through CONFIRMING. A transaction left in CONFIRMING
// by an earlier failed attempt only needs the second step, provided the
// amount is the one already being settled.
func confirmSteps(tx *domain.Transaction, amount int64) ([]TransitionRequest, error) {
	if tx.Status == domain.StatusConfirming {
		if amount != 0 && amount != tx.AuthorizedAmount {
			return nil, domain.NewTransitionDeniedError(tx, domain.StatusConfirming, domain.ReasonSameState)
		}
		return []TransitionRequest{merchantStep(tx.ID, domain.StatusConfirmed, 0)}, nil
	}

	if amount == 0 {
		amount = tx.AuthorizedAmount
	}
	return []TransitionRequest{
		merchantStep(tx.ID, domain.StatusConfirming, amount),
		merchantStep(tx.ID, domain.StatusConfirmed, 0),
	}, nil
}

// Cancel undoes a transaction according to where it is: an unpaid one is
// cancelled, an authorized hold is reversed in full, a confirmed payment is
// refunded fully or partially. Amount zero means everything that remains.
func (s *LifecycleService) Cancel(ctx context.Context, cmd CancelCommand) (*CancelResult, error) {
	if err := validateTransactionCommand(cmd.MerchantID, cmd.TransactionID, cmd.Amount); err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx, cmd.MerchantID, cmd.SignedFields(), cmd.Token); err != nil {
		return nil, err
	}

	op := func(ctx context.Context) (CancelResult, error) {
		return s.cancel(ctx, cmd)
	}
	if cmd.ExternalRequestID == "" {
		r, err := op(ctx)
		if err != nil {
			return nil, err
		}
		return &r, nil
	}

	key := idempotency.Key(cmd.MerchantID, operationCancel, cmd.ExternalRequestID)
	fingerprint := ComputeHash(cancelFingerprint{TransactionID: cmd.TransactionID, Amount: cmd.Amount})
	r, cached, err := s.cancelGuard.GetOrCompute(ctx, key, fingerprint, s.cfg.IdempotencyTTL, op)
	if err != nil {
		return nil, err
	}
	if cached {
		s.logger.Info("cancel replayed from idempotency record", "key", key, "transaction_id", r.TransactionID)
	}
	return &r, nil
}

func (s *LifecycleService) cancel(ctx context.Context, cmd CancelCommand) (CancelResult, error) {
	var original int64
	final, err := s.applyPlanned(ctx, s.ownedLoader(cmd.MerchantID, cmd.TransactionID), func(tx *domain.Transaction) ([]TransitionRequest, error) {
		original = tx.AuthorizedAmount
		if tx.Status.IsPending() {
			original = tx.Amount
		}
		return cancelSteps(tx, cmd.Amount)
	})
	if err != nil {
		return CancelResult{}, err
	}

	newAmount := final.AuthorizedAmount
	if final.Status == domain.StatusCancelled {
		newAmount = 0
	}

	return CancelResult{
		MerchantID:     final.MerchantID,
		OrderID:        final.MerchantOrderID,
		TransactionID:  final.ID,
		Status:         final.Status,
		OriginalAmount: original,
		NewAmount:      newAmount,
	}, nil
}

// cancelSteps picks the undo path for where tx is. REVERSING and REFUNDING
// are resumed, so a retry after a failed second step finishes the job.
func cancelSteps(tx *domain.Transaction, amount int64) ([]TransitionRequest, error) {
	switch tx.Status {
	case domain.StatusAuthorized:
		return []TransitionRequest{
			merchantStep(tx.ID, domain.StatusReversing, amount),
			merchantStep(tx.ID, domain.StatusReversed, 0),
		}, nil

	case domain.StatusReversing:
		if amount != 0 && amount != tx.AuthorizedAmount {
			return nil, domain.NewTransitionDeniedError(tx, domain.StatusReversed, domain.ReasonPartialReversal)
		}
		return []TransitionRequest{merchantStep(tx.ID, domain.StatusReversed, 0)}, nil

	case domain.StatusConfirmed, domain.StatusRefunding:
		if amount == 0 {
			amount = tx.AuthorizedAmount
		}
		// checked up front so a bad amount never leaves a fresh REFUNDING behind
		if amount > tx.AuthorizedAmount {
			return nil, domain.NewInvalidTransitionError(
				tx.ID, tx.Status, domain.StatusRefunded, domain.ReasonAmountExceedsAuthorized)
		}
		var steps []TransitionRequest
		if tx.Status == domain.StatusConfirmed {
			steps = append(steps, merchantStep(tx.ID, domain.StatusRefunding, 0))
		}
		return append(steps, merchantStep(tx.ID, domain.StatusRefunded, amount)), nil

	default:
		// CREATED cancels; any other status gets the state machine's refusal
		return []TransitionRequest{merchantStep(tx.ID, domain.StatusCancelled, 0)}, nil
	}
}

func merchantStep(id string, target domain.Status, amount int64) TransitionRequest {
	return TransitionRequest{
		TransactionID: id,
		Target:        target,
		Amount:        amount,
		Actor:         domain.ActorMerchant,
		Reason:        domain.ReasonMerchantRequest,
	}
}

// Check lists every transaction the merchant opened for an order.
func (s *LifecycleService) Check(ctx context.Context, cmd CheckCommand) (*CheckResult, error) {
	if cmd.MerchantID == "" {
		return nil, domain.NewMissingRequiredFieldError("merchantId")
	}
	if cmd.OrderID == "" {
		return nil, domain.NewMissingRequiredFieldError("orderId")
	}
	if err := s.authenticate(ctx, cmd.MerchantID, cmd.SignedFields(), cmd.Token); err != nil {
		return nil, err
	}

	txs, err := s.store.FindByOrder(ctx, cmd.MerchantID, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("find transactions for order: %w", err)
	}
	if len(txs) == 0 {
		return nil, domain.NewNotFoundError("order", cmd.OrderID)
	}

	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, NewTransactionView(tx))
	}
	return &CheckResult{MerchantID: cmd.MerchantID, OrderID: cmd.OrderID, Transactions: views}, nil
}

func (s *LifecycleService) GetState(ctx context.Context, cmd GetStateCommand) (*TransactionView, error) {
	if err := validateTransactionCommand(cmd.MerchantID, cmd.TransactionID, 0); err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx, cmd.MerchantID, cmd.SignedFields(), cmd.Token); err != nil {
		return nil, err
	}

	tx, err := s.loadOwned(ctx, cmd.MerchantID, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	view := NewTransactionView(tx)
	return &view, nil
}

// History returns the audit trail of one transaction, oldest first.
func (s *LifecycleService) History(ctx context.Context, cmd GetStateCommand) ([]domain.TransitionRecord, error) {
	if err := validateTransactionCommand(cmd.MerchantID, cmd.TransactionID, 0); err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx, cmd.MerchantID, cmd.SignedFields(), cmd.Token); err != nil {
		return nil, err
	}

	if _, err := s.loadOwned(ctx, cmd.MerchantID, cmd.TransactionID); err != nil {
		return nil, err
	}
	records, err := s.store.History(ctx, cmd.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return records, nil
}

// HandleProcessorEvent drives the pre-authorization states on behalf of the
// payment form and the bank. A declined authorization is retried while
// attempts remain and rejected once they are used up.
func (s *LifecycleService) HandleProcessorEvent(ctx context.Context, transactionID string, event ProcessorEvent) (*TransactionView, error) {
	if !domain.IsTransactionID(transactionID) {
		return nil, domain.NewValidationError("transactionId is malformed", nil)
	}

	step := func(target domain.Status) TransitionRequest {
		return TransitionRequest{
			TransactionID: transactionID,
			Target:        target,
			Actor:         domain.ActorBank,
			Reason:        domain.ReasonProcessorEvent,
		}
	}

	var target domain.Status
	switch event {
	case EventFormShown:
		target = domain.StatusFormShown
	case EventVerificationStarted:
		target = domain.StatusVerifying
	case EventAuthorizationStarted:
		target = domain.StatusAuthorizing
	case EventAuthorizationApproved:
		target = domain.StatusAuthorized
	case EventAuthorizationDeclined:
		target = domain.StatusAuthorizationFailed
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown event %q", event), nil)
	}

	load := func(ctx context.Context) (*domain.Transaction, error) {
		return s.store.Load(ctx, transactionID)
	}
	tx, err := s.applyPlanned(ctx, load, func(tx *domain.Transaction) ([]TransitionRequest, error) {
		if event != EventAuthorizationDeclined {
			return []TransitionRequest{step(target)}, nil
		}
		return declineSteps(tx, step), nil
	})
	if err != nil {
		return nil, err
	}

	view := NewTransactionView(tx)
	return &view, nil
}

// declineSteps records the failed attempt, then retries or rejects. A
// transaction already in AUTH_FAIL is only missing the follow-up.
func declineSteps(tx *domain.Transaction, step func(domain.Status) TransitionRequest) []TransitionRequest {
	attempts := tx.AttemptCount
	var steps []TransitionRequest
	if tx.Status != domain.StatusAuthorizationFailed {
		steps = append(steps, step(domain.StatusAuthorizationFailed))
		attempts++
	}
	if tx.Status != domain.StatusAuthorizing && tx.Status != domain.StatusAuthorizationFailed {
		// the state machine refuses the first step
		return steps
	}
	if attempts < tx.MaxAttempts {
		return append(steps, step(domain.StatusAuthorizing))
	}
	return append(steps, step(domain.StatusRejected))
}

// applyPlanned loads the transaction, lets plan choose the steps from its
// current state and applies them under one lease. Each retry reloads and
// plans again.
func (s *LifecycleService) applyPlanned(
	ctx context.Context,
	load func(ctx context.Context) (*domain.Transaction, error),
	plan func(tx *domain.Transaction) ([]TransitionRequest, error),
) (*domain.Transaction, error) {
	return retryStale(ctx, s.cfg.Retry, func(ctx context.Context) (*domain.Transaction, error) {
		tx, err := load(ctx)
		if err != nil {
			return nil, err
		}
		steps, err := plan(tx)
		if err != nil {
			return nil, err
		}
		return s.coordinator.ApplyAll(ctx, steps...)
	})
}

func (s *LifecycleService) ownedLoader(merchantID, transactionID string) func(ctx context.Context) (*domain.Transaction, error) {
	return func(ctx context.Context) (*domain.Transaction, error) {
		return s.loadOwned(ctx, merchantID, transactionID)
	}
}

// loadOwned hides other merchants' transactions behind NotFound.
func (s *LifecycleService) loadOwned(ctx context.Context, merchantID, transactionID string) (*domain.Transaction, error) {
	tx, err := s.store.Load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.MerchantID != merchantID {
		return nil, domain.NewTransactionNotFoundError(transactionID)
	}
	return tx, nil
}

func (s *LifecycleService) authenticate(ctx context.Context, merchantID string, fields map[string]any, token string) error {
	if token == "" {
		s.logger.Warn("request without token", "merchant_id", merchantID)
		return domain.NewMissingTokenError()
	}

	account, err := s.merchants.FindMerchant(ctx, merchantID)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return fmt.Errorf("lookup merchant: %w", err)
	}

	if err := s.auth.Verify(fields, token, account); err != nil {
		s.logger.Warn("authentication failed", "merchant_id", merchantID, "error", err)
		if domain.IsKind(err, domain.KindAuthentication) && account == nil {
			return domain.NewMerchantNotFoundError(merchantID)
		}
		return err
	}
	return nil
}

func validateTransactionCommand(merchantID, transactionID string, amount int64) error {
	if merchantID == "" {
		return domain.NewMissingRequiredFieldError("merchantId")
	}
	if transactionID == "" {
		return domain.NewMissingRequiredFieldError("transactionId")
	}
	if !domain.IsTransactionID(transactionID) {
		return domain.NewValidationError("transactionId is malformed", nil)
	}
	if amount < 0 {
		return domain.NewValidationError("amount must not be negative", nil)
	}
	return nil
}
