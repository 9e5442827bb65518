package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/internal/listings"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/db"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/metrics"
	"github.com/bukkus/bukkus-backend/pkg/outbox"
	"github.com/bukkus/bukkus-backend/pkg/outbox/payloads"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

const (
	opTransfer = "transfer"
	opRedeem   = "redeem"
	opDeposit  = "deposit"

	maxAliasLen = 40
)

// Service moves BUKKcoins between wallets. Every mutation runs in one
// transaction: balances, entries, the idempotency record and outbox events
// commit together or not at all.
type Service interface {
	OpenAccount(ctx context.Context, accountID uuid.UUID, alias *string) (*models.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	GetHistory(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	History(ctx context.Context, accountID uuid.UUID, pageSize int) iter.Seq2[Entry, error]
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	Redeem(ctx context.Context, input RedeemInput) (*RedemptionResult, error)
	Deposit(ctx context.Context, input DepositInput) (*DepositResult, error)
	ListDeposits(ctx context.Context, params pagination.Params) (*HistoryPage, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error)
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo     Repository
	Listings listings.Repository
	Tx       txRunner
	Outbox   outboxEmitter
	Config   config.LedgerConfig
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	listings listings.Repository
	tx       txRunner
	outbox   outboxEmitter
	cfg      config.LedgerConfig
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates params and returns the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := params.Config
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = 10 * time.Millisecond
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = pagination.DefaultLimit
	}
	return &service{
		repo:     params.Repo,
		listings: params.Listings,
		tx:       params.Tx,
		outbox:   params.Outbox,
		cfg:      cfg,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// OpenAccount creates the wallet with a zero balance if it does not exist yet.
func (s *service) OpenAccount(ctx context.Context, accountID uuid.UUID, alias *string) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	var normalized *string
	if alias != nil {
		trimmed := strings.TrimSpace(*alias)
		if len(trimmed) > maxAliasLen {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "alias is too long")
		}
		if trimmed != "" {
			normalized = &trimmed
		}
	}

	now := s.now().UTC()
	_, err := s.repo.CreateAccountIfAbsent(ctx, &models.Account{
		ID:        accountID,
		Alias:     normalized,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "alias already taken")
		}
		return nil, db.StoreError(err, "open account")
	}
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		return nil, db.StoreError(err, "load account")
	}
	return account, nil
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeUnknownAccount, "account not found")
		}
		return 0, db.StoreError(err, "load balance")
	}
	return account.Balance, nil
}

func (s *service) GetHistory(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if _, err := s.GetBalance(ctx, accountID); err != nil {
		return nil, err
	}
	window, err := params.Resolve(s.cfg.HistoryPageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListEntries(ctx, accountID, window.After, window.Fetch())
	if err != nil {
		return nil, db.StoreError(err, "list ledger entries")
	}
	rows, next := pagination.Cut(rows, window.Limit, entryPosition)

	page := &HistoryPage{Entries: make([]Entry, 0, len(rows)), NextCursor: pagination.EncodeCursor(next)}
	for _, row := range rows {
		page.Entries = append(page.Entries, entryFromModel(row))
	}
	return page, nil
}

// History walks every entry of the account, newest first, fetching one page at
// a time as the caller advances. Each range over the sequence starts afresh.
func (s *service) History(ctx context.Context, accountID uuid.UUID, pageSize int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		cursor := ""
		for {
			page, err := s.GetHistory(ctx, accountID, pagination.Params{Limit: pageSize, Cursor: cursor})
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, entry := range page.Entries {
				if !yield(entry, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			cursor = page.NextCursor
		}
	}
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	start := s.now()
	result, err := s.transfer(ctx, input)
	s.observe(opTransfer, start, err)
	if err == nil && !result.Replayed {
		s.metrics.AddVolume(opTransfer, result.Debit.Amount)
	}
	return result, err
}

func (s *service) transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be a positive integer")
	}
	if input.FromAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sender identity missing")
	}
	alias := strings.TrimSpace(input.ToAlias)
	if input.ToAccountID == uuid.Nil && alias == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	if input.ToAccountID == input.FromAccountID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "cannot transfer to the same account")
	}

	recipient := "alias:" + strings.ToLower(alias)
	if input.ToAccountID != uuid.Nil {
		recipient = input.ToAccountID.String()
	}
	req, err := newKeyedRequest(input.FromAccountID, input.IdempotencyKey, opTransfer,
		input.FromAccountID.String(), recipient, strconv.FormatInt(input.Amount, 10))
	if err != nil {
		return nil, err
	}

	var result *TransferResult
	err = s.runTx(ctx, opTransfer, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		result = nil

		var stored TransferResult
		if ok, err := replay(ctx, repo, req, &stored); err != nil || ok {
			if ok {
				stored.Replayed = true
				result = &stored
			}
			return err
		}

		toID := input.ToAccountID
		if toID == uuid.Nil {
			acct, err := repo.FindAccountByAlias(ctx, alias)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeUnknownAccount, "recipient not found")
			}
			if err != nil {
				return err
			}
			toID = acct.ID
		}
		if toID == input.FromAccountID {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "cannot transfer to the same account")
		}

		locked, err := repo.LockAccounts(ctx, input.FromAccountID, toID)
		if err != nil {
			return err
		}
		from, ok := locked[input.FromAccountID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnknownAccount, "sender account not found")
		}
		to, ok := locked[toID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnknownAccount, "recipient account not found")
		}
		if from.Balance < input.Amount {
			return insufficient(from.Balance, input.Amount)
		}
		toBalance, err := credited(to.Balance, input.Amount)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		operationID := uuid.New()
		if err := repo.UpdateBalance(ctx, from, from.Balance-input.Amount, now); err != nil {
			return err
		}
		if err := repo.UpdateBalance(ctx, to, toBalance, now); err != nil {
			return err
		}

		debit := models.LedgerEntry{
			ID:                    uuid.New(),
			AccountID:             from.ID,
			Kind:                  enums.LedgerEntryTransferOut,
			Amount:                input.Amount,
			BalanceAfter:          from.Balance,
			CounterpartyAccountID: &to.ID,
			OperationID:           operationID,
			ActorAccountID:        &from.ID,
			CreatedAt:             now,
		}
		credit := models.LedgerEntry{
			ID:                    uuid.New(),
			AccountID:             to.ID,
			Kind:                  enums.LedgerEntryTransferIn,
			Amount:                input.Amount,
			BalanceAfter:          to.Balance,
			CounterpartyAccountID: &from.ID,
			OperationID:           operationID,
			ActorAccountID:        &from.ID,
			CreatedAt:             now,
		}
		if err := repo.AppendEntries(ctx, debit, credit); err != nil {
			return err
		}
		if err := s.emitCredited(ctx, tx, credit, actorRef(from.ID, enums.AccountRoleUser)); err != nil {
			return err
		}

		result = &TransferResult{
			OperationID: operationID,
			Debit:       entryFromModel(debit),
			Credit:      entryFromModel(credit),
			Balance:     from.Balance,
		}
		return remember(ctx, repo, req, operationID, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Redeem(ctx context.Context, input RedeemInput) (*RedemptionResult, error) {
	start := s.now()
	result, err := s.redeem(ctx, input)
	s.observe(opRedeem, start, err)
	if err == nil && !result.Replayed {
		s.metrics.AddVolume(opRedeem, result.Price)
	}
	return result, err
}

func (s *service) redeem(ctx context.Context, input RedeemInput) (*RedemptionResult, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	req, err := newKeyedRequest(input.AccountID, input.IdempotencyKey, opRedeem,
		input.AccountID.String(), input.ListingID.String())
	if err != nil {
		return nil, err
	}

	var result *RedemptionResult
	err = s.runTx(ctx, opRedeem, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		listingRepo := s.listings.WithTx(tx)
		result = nil

		var stored RedemptionResult
		if ok, err := replay(ctx, repo, req, &stored); err != nil || ok {
			if ok {
				stored.Replayed = true
				result = &stored
			}
			return err
		}

		listing, err := listingRepo.FindForUpdate(ctx, input.ListingID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeListingUnavailable, "listing not found")
		}
		if err != nil {
			return err
		}
		if !listing.Redeemable() {
			return pkgerrors.New(pkgerrors.CodeListingUnavailable, "listing is not available for redemption")
		}
		if listing.OwnerAccountID == input.AccountID {
			return pkgerrors.New(pkgerrors.CodeSelfRedemption, "cannot redeem your own listing")
		}

		locked, err := repo.LockAccounts(ctx, input.AccountID, listing.OwnerAccountID)
		if err != nil {
			return err
		}
		buyer, ok := locked[input.AccountID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnknownAccount, "buyer account not found")
		}
		owner, ok := locked[listing.OwnerAccountID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnknownAccount, "listing owner account not found")
		}
		price := listing.TokenPrice
		if buyer.Balance < price {
			return insufficient(buyer.Balance, price)
		}
		ownerBalance, err := credited(owner.Balance, price)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		operationID := uuid.New()
		if err := repo.UpdateBalance(ctx, buyer, buyer.Balance-price, now); err != nil {
			return err
		}
		if err := repo.UpdateBalance(ctx, owner, ownerBalance, now); err != nil {
			return err
		}
		if err := listingRepo.MarkWithdrawn(ctx, listing, now); err != nil {
			return err
		}

		debit := models.LedgerEntry{
			ID:                    uuid.New(),
			AccountID:             buyer.ID,
			Kind:                  enums.LedgerEntryRedemption,
			Amount:                price,
			BalanceAfter:          buyer.Balance,
			CounterpartyAccountID: &owner.ID,
			RelatedListingID:      &listing.ID,
			OperationID:           operationID,
			ActorAccountID:        &buyer.ID,
			CreatedAt:             now,
		}
		credit := models.LedgerEntry{
			ID:                    uuid.New(),
			AccountID:             owner.ID,
			Kind:                  enums.LedgerEntryTransferIn,
			Amount:                price,
			BalanceAfter:          owner.Balance,
			CounterpartyAccountID: &buyer.ID,
			RelatedListingID:      &listing.ID,
			OperationID:           operationID,
			ActorAccountID:        &buyer.ID,
			CreatedAt:             now,
		}
		if err := repo.AppendEntries(ctx, debit, credit); err != nil {
			return err
		}

		actor := actorRef(buyer.ID, enums.AccountRoleUser)
		if _, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingRedeemed,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.ListingRedeemedEvent{
				ListingID:      listing.ID,
				ListingTitle:   listing.Title,
				OperationID:    operationID,
				BuyerAccountID: buyer.ID,
				OwnerAccountID: owner.ID,
				TokenPrice:     price,
			},
		}); err != nil {
			return err
		}
		if err := s.emitCredited(ctx, tx, credit, actor); err != nil {
			return err
		}

		result = &RedemptionResult{
			OperationID: operationID,
			ListingID:   listing.ID,
			Price:       price,
			Debit:       entryFromModel(debit),
			Credit:      entryFromModel(credit),
			Balance:     buyer.Balance,
		}
		return remember(ctx, repo, req, operationID, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Deposit(ctx context.Context, input DepositInput) (*DepositResult, error) {
	start := s.now()
	result, err := s.deposit(ctx, input)
	s.observe(opDeposit, start, err)
	if err == nil && !result.Replayed {
		s.metrics.AddVolume(opDeposit, result.Amount)
	}
	return result, err
}

func (s *service) deposit(ctx context.Context, input DepositInput) (*DepositResult, error) {
	if input.AdminActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthorized, "deposits require an administrator")
	}
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be a positive integer")
	}
	req, err := newKeyedRequest(input.AdminActorID, input.IdempotencyKey, opDeposit,
		input.AccountID.String(), strconv.FormatInt(input.Amount, 10))
	if err != nil {
		return nil, err
	}

	var result *DepositResult
	err = s.runTx(ctx, opDeposit, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		result = nil

		var stored DepositResult
		if ok, err := replay(ctx, repo, req, &stored); err != nil || ok {
			if ok {
				stored.Replayed = true
				result = &stored
			}
			return err
		}

		locked, err := repo.LockAccounts(ctx, input.AccountID)
		if err != nil {
			return err
		}
		account, ok := locked[input.AccountID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnknownAccount, "account not found")
		}

		balance, err := credited(account.Balance, input.Amount)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := repo.UpdateBalance(ctx, account, balance, now); err != nil {
			return err
		}
		entry := models.LedgerEntry{
			ID:             uuid.New(),
			AccountID:      account.ID,
			Kind:           enums.LedgerEntryDeposit,
			Amount:         input.Amount,
			BalanceAfter:   account.Balance,
			OperationID:    uuid.New(),
			ActorAccountID: &input.AdminActorID,
			CreatedAt:      now,
		}
		if err := repo.AppendEntries(ctx, entry); err != nil {
			return err
		}
		if err := s.emitCredited(ctx, tx, entry, actorRef(input.AdminActorID, enums.AccountRoleAdmin)); err != nil {
			return err
		}

		result = &DepositResult{Entry: entryFromModel(entry)}
		return remember(ctx, repo, req, entry.OperationID, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListDeposits returns administrative top-ups across every wallet, newest first.
func (s *service) ListDeposits(ctx context.Context, params pagination.Params) (*HistoryPage, error) {
	window, err := params.Resolve(s.cfg.HistoryPageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListEntriesByKind(ctx, enums.LedgerEntryDeposit, window.After, window.Fetch())
	if err != nil {
		return nil, db.StoreError(err, "list deposits")
	}
	rows, next := pagination.Cut(rows, window.Limit, entryPosition)

	page := &HistoryPage{Entries: make([]Entry, 0, len(rows)), NextCursor: pagination.EncodeCursor(next)}
	for _, row := range rows {
		page.Entries = append(page.Entries, entryFromModel(row))
	}
	return page, nil
}

// runTx executes fn in a transaction and repeats the whole transaction when it
// loses a race to a concurrent writer. Anything still failing on
// infrastructure is reported as StoreUnavailable.
func (s *service) runTx(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	backoff := retry.WithMaxRetries(uint64(s.cfg.ConflictRetries), retry.NewExponential(s.cfg.ConflictBackoff))
	backoff = retry.WithJitterPercent(20, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := s.tx.WithTx(ctx, fn)
		if err != nil && pkgerrors.As(err) == nil && db.IsTransient(err) {
			s.metrics.IncConflict(operation)
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{"operation": operation, "attempt": attempt})
				s.logg.Warn(logCtx, "ledger.tx.conflict_retry")
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) == nil && db.IsTransient(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "ledger is busy, try again")
	}
	return db.StoreError(err, "ledger store unavailable")
}

func (s *service) emitCredited(ctx context.Context, tx *gorm.DB, entry models.LedgerEntry, actor *outbox.ActorRef) error {
	_, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLedgerCredited,
		AggregateType: enums.AggregateAccount,
		AggregateID:   entry.AccountID,
		Actor:         actor,
		OccurredAt:    entry.CreatedAt,
		Data: payloads.LedgerCreditedEvent{
			EntryID:               entry.ID,
			OperationID:           entry.OperationID,
			AccountID:             entry.AccountID,
			Kind:                  entry.Kind,
			Amount:                entry.Amount,
			BalanceAfter:          entry.BalanceAfter,
			CounterpartyAccountID: entry.CounterpartyAccountID,
			RelatedListingID:      entry.RelatedListingID,
		},
	})
	return err
}

func (s *service) observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(pkgerrors.CodeOf(err))
	}
	s.metrics.Observe(operation, result, s.now().Sub(start))
}

// credited is balance plus amount. A sum past the largest representable
// balance is refused as an invalid amount; it can never succeed on retry.
func credited(balance, amount int64) (int64, error) {
	if amount > math.MaxInt64-balance {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidAmount, "credit would exceed the maximum wallet balance").
			WithDetails(map[string]int64{"balance": balance, "amount": amount})
	}
	return balance + amount, nil
}

func insufficient(balance, required int64) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance").
		WithDetails(map[string]int64{"balance": balance, "required": required})
}

func actorRef(accountID uuid.UUID, role enums.AccountRole) *outbox.ActorRef {
	return &outbox.ActorRef{AccountID: accountID, Role: string(role)}
}
