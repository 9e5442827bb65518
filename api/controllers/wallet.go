package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/api/validators"
	"github.com/bukkus/bukkus-backend/internal/ledger"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

type openWalletRequest struct {
	Alias *string `json:"alias" validate:"omitempty,alias"`
}

type transferRequest struct {
	ToAccountID *uuid.UUID  `json:"to_account_id"`
	ToAlias     *string     `json:"to_alias" validate:"omitempty,alias"`
	Amount      json.Number `json:"amount" validate:"required"`
}

type depositRequest struct {
	Amount json.Number `json:"amount" validate:"required"`
}

type balanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
}

// OpenWallet creates the caller's wallet with a zero balance. Repeating it is harmless.
func OpenWallet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		var body openWalletRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Reply{}, err
		}
		account, err := svc.OpenAccount(r.Context(), accountID, body.Alias)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(ledger.AccountFromModel(account)), nil
	})
}

func WalletBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		balance, err := svc.GetBalance(r.Context(), accountID)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(balanceResponse{AccountID: accountID, Balance: balance}), nil
	})
}

// WalletHistory returns the caller's entries, newest first.
func WalletHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		params, err := pageParams(r)
		if err != nil {
			return responses.Reply{}, err
		}
		page, err := svc.GetHistory(r.Context(), accountID, params)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(page), nil
	})
}

// WalletTransfer moves coins from the caller to another wallet, addressed by
// id or by alias but never both.
func WalletTransfer(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		accountID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		var body transferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Reply{}, err
		}
		input, err := body.input(accountID)
		if err != nil {
			return responses.Reply{}, err
		}
		input.IdempotencyKey = idempotencyKey(r)

		result, err := svc.Transfer(r.Context(), input)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.Stored(result, result.Replayed), nil
	})
}

func (b transferRequest) input(from uuid.UUID) (ledger.TransferInput, error) {
	switch {
	case b.ToAccountID == nil && b.ToAlias == nil:
		return ledger.TransferInput{}, pkgerrors.New(pkgerrors.CodeValidation, "recipient is required").
			WithDetails(map[string]string{"to_account_id": "is required when to_alias is missing"})
	case b.ToAccountID != nil && b.ToAlias != nil:
		return ledger.TransferInput{}, pkgerrors.New(pkgerrors.CodeValidation, "ambiguous recipient").
			WithDetails(map[string]string{"to_alias": "cannot be combined with to_account_id"})
	}
	amount, err := coinAmount(b.Amount)
	if err != nil {
		return ledger.TransferInput{}, err
	}
	input := ledger.TransferInput{FromAccountID: from, Amount: amount}
	if b.ToAccountID != nil {
		input.ToAccountID = *b.ToAccountID
	} else {
		input.ToAlias = *b.ToAlias
	}
	return input, nil
}

// AdminDeposit credits a wallet. The router restricts it to admins.
func AdminDeposit(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		adminID, err := callerAccount(r)
		if err != nil {
			return responses.Reply{}, err
		}
		accountID, err := validators.ParseUUIDParam(r, "accountId")
		if err != nil {
			return responses.Reply{}, err
		}
		var body depositRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return responses.Reply{}, err
		}
		amount, err := coinAmount(body.Amount)
		if err != nil {
			return responses.Reply{}, err
		}

		result, err := svc.Deposit(r.Context(), ledger.DepositInput{
			AccountID:      accountID,
			Amount:         amount,
			AdminActorID:   adminID,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			return responses.Reply{}, err
		}
		if logg != nil && !result.Replayed {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"target_account_id": accountID.String(),
				"amount":            amount,
			}), "ledger.deposit.recorded")
		}
		return responses.Stored(result, result.Replayed), nil
	})
}

// AdminDeposits lists top-ups across every wallet, newest first.
func AdminDeposits(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, func(r *http.Request) (responses.Reply, error) {
		params, err := pageParams(r)
		if err != nil {
			return responses.Reply{}, err
		}
		page, err := svc.ListDeposits(r.Context(), params)
		if err != nil {
			return responses.Reply{}, err
		}
		return responses.OK(page), nil
	})
}
