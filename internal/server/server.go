package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/config"
	"github.com/and161185/checkout/internal/deps"
	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/middleware"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/orders"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

//go:generate mockgen -destination=../mocks/mocks.go -package=mocks github.com/and161185/checkout/internal/server UserStorage,Orders,Webhooks,Wallet,Withdrawals

type UserStorage interface {
	CreateUser(ctx context.Context, login, passwordHash string, role model.Role) (model.User, error)
	GetUserByLogin(ctx context.Context, login string) (model.User, string, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

type Orders interface {
	Create(ctx context.Context, in orders.CheckoutInput) (model.Order, error)
	Pay(ctx context.Context, orderID uuid.UUID, card *gateway.Card) (model.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (model.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error)
	Receipt(ctx context.Context, sellerID, orderID uuid.UUID) (model.Order, model.FeeBreakdown, error)
	Backfill(ctx context.Context, limit int) (int, error)
}

type Webhooks interface {
	Accept(ctx context.Context, provider string, n gateway.Notification) (model.WebhookEvent, error)
	Process(ctx context.Context, ev model.WebhookEvent) error
	Pending(ctx context.Context, limit int) ([]model.WebhookEvent, error)
}

type Wallet interface {
	Balance(ctx context.Context, sellerID uuid.UUID) (model.Balance, error)
	Entries(ctx context.Context, sellerID uuid.UUID) ([]model.WalletEntry, error)
	PromoteDue(ctx context.Context, now time.Time) (int64, error)
}

type Withdrawals interface {
	Request(ctx context.Context, sellerID uuid.UUID, amount decimal.Decimal, bankAccountID uuid.UUID) (model.Withdrawal, error)
	Approve(ctx context.Context, actor model.Actor, id uuid.UUID, receiptRef string) (model.Withdrawal, error)
	Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (model.Withdrawal, error)
	List(ctx context.Context, sellerID uuid.UUID) ([]model.Withdrawal, error)
	ListByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.Withdrawal, error)
	AddBankAccount(ctx context.Context, sellerID uuid.UUID, req model.BankAccountRequest) (model.BankAccount, error)
	BankAccounts(ctx context.Context, sellerID uuid.UUID) ([]model.BankAccount, error)
}

type Services struct {
	Orders      Orders
	Webhooks    Webhooks
	Wallet      Wallet
	Withdrawals Withdrawals
}

type Server struct {
	users    UserStorage
	services Services
	config   *config.Config
	deps     *deps.Deps
}

func NewServer(users UserStorage, services Services, config *config.Config, deps *deps.Deps) *Server {
	return &Server{
		users:    users,
		services: services,
		config:   config,
		deps:     deps,
	}
}

func (srv *Server) buildRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(middleware.LogMiddleware(srv.deps.Logger))
	router.Use(middleware.DecompressMiddleware)
	router.Use(middleware.CompressMiddleware(srv.deps.Logger))

	router.Post("/api/user/register", srv.RegisterHandler)
	router.Post("/api/user/login", srv.LoginHandler)

	// публичные ручки покупателя и провайдеров
	router.Post("/api/checkout", srv.CheckoutHandler)
	router.Get("/api/checkout/{orderID}", srv.CheckoutStatusHandler)
	router.Post("/api/checkout/{orderID}/payment", srv.RetryPaymentHandler)
	router.Post("/api/webhooks/{provider}", srv.WebhookHandler)

	// авторизованные ручки
	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(srv.users, srv.deps.TokenManager))

		r.Get("/api/seller/orders", srv.GetOrdersHandler)
		r.Get("/api/seller/orders/{orderID}/receipt", srv.GetReceiptHandler)
		r.Get("/api/seller/balance", srv.GetBalanceHandler)
		r.Get("/api/seller/wallet/entries", srv.GetWalletEntriesHandler)
		r.Post("/api/seller/bank-accounts", srv.AddBankAccountHandler)
		r.Get("/api/seller/bank-accounts", srv.GetBankAccountsHandler)
		r.Post("/api/seller/withdrawals", srv.WithdrawHandler)
		r.Get("/api/seller/withdrawals", srv.GetWithdrawalsHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))

			r.Get("/api/admin/withdrawals", srv.AdminWithdrawalsHandler)
			r.Post("/api/admin/withdrawals/{withdrawalID}/decision", srv.AdminDecisionHandler)
		})
	})

	return router
}

func (srv *Server) Run(ctx context.Context) error {
	router := srv.buildRouter()

	server := &http.Server{
		Addr:              srv.config.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.deps.Logger.Fatalf("server error: %v", err)
		}
	}()

	go srv.WebhookRedelivery(ctx)
	go srv.ReleaseSweep(ctx)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	creds.Login = strings.TrimSpace(creds.Login)
	if creds.Login == "" || creds.Password == "" {
		http.Error(w, "login and password required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}

	user, err := s.users.CreateUser(r.Context(), creds.Login, string(hash), model.RoleSeller)
	if err != nil {
		if errors.Is(err, errs.ErrLoginAlreadyExists) {
			http.Error(w, "login taken", http.StatusConflict)
			return
		}
		s.deps.Logger.Errorw("register_failed", "login", creds.Login, "error", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	token, err := s.deps.TokenManager.GenerateToken(user.ID, user.Role)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if creds.Login == "" || creds.Password == "" {
		http.Error(w, "login and password required", http.StatusBadRequest)
		return
	}

	user, hash, err := s.users.GetUserByLogin(r.Context(), strings.TrimSpace(creds.Login))
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.deps.TokenManager.GenerateToken(user.ID, user.Role)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func currentUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return user, ok
}
