package controllers

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/bukkus/bukkus-backend/api/middleware"
	"github.com/bukkus/bukkus-backend/api/responses"
	"github.com/bukkus/bukkus-backend/internal/ledger"
	"github.com/bukkus/bukkus-backend/internal/listings"
	"github.com/bukkus/bukkus-backend/internal/offers"
	"github.com/bukkus/bukkus-backend/pkg/db/models"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	"github.com/bukkus/bukkus-backend/pkg/logger"
	"github.com/bukkus/bukkus-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type stubLedger struct {
	openFn     func(ctx context.Context, accountID uuid.UUID, alias *string) (*models.Account, error)
	balanceFn  func(ctx context.Context, accountID uuid.UUID) (int64, error)
	historyFn  func(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.HistoryPage, error)
	transferFn func(ctx context.Context, input ledger.TransferInput) (*ledger.TransferResult, error)
	redeemFn   func(ctx context.Context, input ledger.RedeemInput) (*ledger.RedemptionResult, error)
	depositFn  func(ctx context.Context, input ledger.DepositInput) (*ledger.DepositResult, error)
	depositsFn func(ctx context.Context, params pagination.Params) (*ledger.HistoryPage, error)
}

func (s *stubLedger) OpenAccount(ctx context.Context, accountID uuid.UUID, alias *string) (*models.Account, error) {
	return s.openFn(ctx, accountID, alias)
}

func (s *stubLedger) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.balanceFn(ctx, accountID)
}

func (s *stubLedger) GetHistory(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.HistoryPage, error) {
	return s.historyFn(ctx, accountID, params)
}

func (s *stubLedger) History(ctx context.Context, accountID uuid.UUID, pageSize int) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {}
}

func (s *stubLedger) Transfer(ctx context.Context, input ledger.TransferInput) (*ledger.TransferResult, error) {
	return s.transferFn(ctx, input)
}

func (s *stubLedger) Redeem(ctx context.Context, input ledger.RedeemInput) (*ledger.RedemptionResult, error) {
	return s.redeemFn(ctx, input)
}

func (s *stubLedger) Deposit(ctx context.Context, input ledger.DepositInput) (*ledger.DepositResult, error) {
	return s.depositFn(ctx, input)
}

func (s *stubLedger) ListDeposits(ctx context.Context, params pagination.Params) (*ledger.HistoryPage, error) {
	return s.depositsFn(ctx, params)
}

type stubListings struct {
	createFn   func(ctx context.Context, input listings.CreateListingInput) (*models.Listing, error)
	getFn      func(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	listFn     func(ctx context.Context, input listings.ListListingsInput) (*listings.ListingPage, error)
	updateFn   func(ctx context.Context, input listings.UpdateListingInput) (*models.Listing, error)
	withdrawFn func(ctx context.Context, listingID, ownerAccountID uuid.UUID) (*models.Listing, error)
}

func (s *stubListings) List(ctx context.Context, input listings.ListListingsInput) (*listings.ListingPage, error) {
	return s.listFn(ctx, input)
}

func (s *stubListings) Update(ctx context.Context, input listings.UpdateListingInput) (*models.Listing, error) {
	return s.updateFn(ctx, input)
}

func (s *stubListings) Create(ctx context.Context, input listings.CreateListingInput) (*models.Listing, error) {
	return s.createFn(ctx, input)
}

func (s *stubListings) Get(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	return s.getFn(ctx, listingID)
}

func (s *stubListings) Withdraw(ctx context.Context, listingID, ownerAccountID uuid.UUID) (*models.Listing, error) {
	return s.withdrawFn(ctx, listingID, ownerAccountID)
}

type stubOffers struct {
	createFn func(ctx context.Context, input offers.CreateOfferInput) (*models.Offer, error)
	acceptFn func(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error)
	rejectFn func(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error)
	listFn   func(ctx context.Context, input offers.ListOffersInput) (*offers.OfferPage, error)
	getFn    func(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error)
}

func (s *stubOffers) CreateOffer(ctx context.Context, input offers.CreateOfferInput) (*models.Offer, error) {
	return s.createFn(ctx, input)
}

func (s *stubOffers) AcceptOffer(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error) {
	return s.acceptFn(ctx, offerID, accountID)
}

func (s *stubOffers) RejectOffer(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error) {
	return s.rejectFn(ctx, offerID, accountID)
}

func (s *stubOffers) ListOffers(ctx context.Context, input offers.ListOffersInput) (*offers.OfferPage, error) {
	return s.listFn(ctx, input)
}

func (s *stubOffers) GetOffer(ctx context.Context, offerID, accountID uuid.UUID) (*models.Offer, error) {
	return s.getFn(ctx, offerID, accountID)
}

type stubChat struct {
	getFn func(ctx context.Context, channelID, accountID uuid.UUID) (*models.ChatChannel, error)
}

func (s *stubChat) EnsureChannel(ctx context.Context, tx *gorm.DB, participants [2]uuid.UUID, listingID, offerID uuid.UUID) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (s *stubChat) Get(ctx context.Context, channelID, accountID uuid.UUID) (*models.ChatChannel, error) {
	return s.getFn(ctx, channelID, accountID)
}

// newRequest builds an authenticated request carrying chi URL params.
func newRequest(method, target, body string, account uuid.UUID, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if account != uuid.Nil {
		ctx = middleware.WithAccount(ctx, account, enums.AccountRoleUser)
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

func withLocale(req *http.Request, tag language.Tag) *http.Request {
	return req.WithContext(responses.WithLocale(req.Context(), tag))
}

type errorEnvelope struct {
	Error struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
		Details   map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}
