// Package testdb opens throwaway sqlite databases carrying the payment schema
// so repository and settlement tests run without Postgres.
package testdb

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL CHECK (amount > 0),
  payment_type TEXT NOT NULL,
  reference_id TEXT,
  provider TEXT NOT NULL,
  gateway_driver TEXT,
  payment_method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  description TEXT,
  desired_plan TEXT,
  payer_email TEXT NOT NULL,
  payer_name TEXT NOT NULL,
  payload TEXT,
  qr_image TEXT,
  payment_url TEXT,
  external_transaction_id TEXT,
  receipt_url TEXT,
  capture_method TEXT,
  confirmation_source TEXT,
  expires_at DATETIME NOT NULL,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT NOT NULL,
  subscription_plan TEXT NOT NULL DEFAULT 'BASIC',
  subscription_expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS professionals (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  display_name TEXT NOT NULL,
  landing_page_unlocked INTEGER NOT NULL DEFAULT 0,
  landing_page_unlocked_at DATETIME,
  landing_page_payment_id TEXT,
  balance NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS stores (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  plan_tier TEXT NOT NULL DEFAULT 'free',
  plan_expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS marketplace_orders (
  id TEXT PRIMARY KEY,
  buyer_user_id TEXT NOT NULL,
  store_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  total_amount NUMERIC NOT NULL,
  payment_id TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS professional_hires (
  id TEXT PRIMARY KEY,
  professional_id TEXT NOT NULL,
  client_user_id TEXT NOT NULL,
  agreed_amount NUMERIC NOT NULL,
  is_paid INTEGER NOT NULL DEFAULT 0,
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  platform_fee NUMERIC,
  payment_id TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
  id TEXT PRIMARY KEY,
  professional_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  hire_id TEXT,
  created_at DATETIME,
  UNIQUE (professional_id, user_id)
);`,
	`CREATE TABLE IF NOT EXISTS settlement_ledger_events (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL,
  payment_type TEXT NOT NULL,
  type TEXT NOT NULL,
  user_id TEXT NOT NULL,
  professional_id TEXT,
  amount NUMERIC NOT NULL,
  metadata TEXT,
  created_at DATETIME,
  UNIQUE (payment_id, type)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payment_webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  event_key TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payment_id TEXT,
  payload TEXT NOT NULL,
  signature_valid INTEGER NOT NULL DEFAULT 0,
  processed_at DATETIME,
  processing_error TEXT,
  created_at DATETIME,
  UNIQUE (provider, event_key)
);`,
}

// Open returns a file-backed sqlite connection with the schema applied.
// Write transactions take the database lock up front so concurrent settlement
// tests serialize the way row locks do on Postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "paysettle.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate&_foreign_keys=0", path)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// MustCreateUser seeds a BASIC user.
func MustCreateUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		ID:               uuid.New(),
		Email:            fmt.Sprintf("ps_test_%s@example.com", uuid.NewString()),
		Name:             "Repo Tester",
		SubscriptionPlan: enums.SubscriptionPlanBasic,
	}
	require.NoError(t, conn.Create(user).Error)
	return user
}

// MustCreateProfessional seeds a locked professional with zero balance.
func MustCreateProfessional(t *testing.T, conn *gorm.DB, userID uuid.UUID) *models.Professional {
	t.Helper()
	pro := &models.Professional{
		ID:          uuid.New(),
		UserID:      userID,
		DisplayName: "Ana Souza",
		Balance:     decimal.Zero,
	}
	require.NoError(t, conn.Create(pro).Error)
	return pro
}

// MustCreateStore seeds a free-tier store.
func MustCreateStore(t *testing.T, conn *gorm.DB, ownerID uuid.UUID) *models.Store {
	t.Helper()
	store := &models.Store{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		Name:        "Loja Teste",
		PlanTier:    enums.StorePlanTierFree,
	}
	require.NoError(t, conn.Create(store).Error)
	return store
}

// MustCreateOrder seeds an order awaiting payment.
func MustCreateOrder(t *testing.T, conn *gorm.DB, buyerID, storeID uuid.UUID, total string) *models.MarketplaceOrder {
	t.Helper()
	order := &models.MarketplaceOrder{
		ID:          uuid.New(),
		BuyerUserID: buyerID,
		StoreID:     storeID,
		Status:      enums.MarketplaceOrderStatusPendingPayment,
		TotalAmount: decimal.RequireFromString(total),
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

// MustCreateHire seeds an unpaid hire for the given agreed amount.
func MustCreateHire(t *testing.T, conn *gorm.DB, professionalID, clientID uuid.UUID, agreed string) *models.ProfessionalHire {
	t.Helper()
	hire := &models.ProfessionalHire{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		ClientUserID:   clientID,
		AgreedAmount:   decimal.RequireFromString(agreed),
		PaymentStatus:  enums.HirePaymentStatusUnpaid,
	}
	require.NoError(t, conn.Create(hire).Error)
	return hire
}

// MustCreateIntent seeds a pending intent owned by userID.
func MustCreateIntent(t *testing.T, conn *gorm.DB, userID uuid.UUID, paymentType enums.PaymentType, referenceID *uuid.UUID, amount string, expiresAt time.Time) *models.PaymentIntent {
	t.Helper()
	provider, method := enums.PaymentProviderManual, enums.PaymentMethodPix
	switch paymentType {
	case enums.PaymentTypeSubscription, enums.PaymentTypeStorePlan, enums.PaymentTypeMarketplaceOrder:
		provider, method = enums.PaymentProviderGateway, enums.PaymentMethodCard
	}
	intent := &models.PaymentIntent{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		PaymentType: paymentType,
		ReferenceID: referenceID,
		Provider:    provider,
		Method:      method,
		Status:      enums.PaymentStatusPending,
		PayerEmail:  "payer@example.com",
		PayerName:   "Payer Name",
		ExpiresAt:   expiresAt.UTC(),
	}
	require.NoError(t, conn.Create(intent).Error)
	return intent
}
