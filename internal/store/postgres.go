package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

// PostgresStore is the gorm/postgres-backed Store, grounded on
// core-coin-nuntiare/internal/repository/postgres.go's connection setup and
// per-entity method shape.
type PostgresStore struct {
	log  *logger.Logger
	Conn *gorm.DB
}

// NewPostgresStore opens the store and auto-migrates every persistent
// entity in spec.md §3.
func NewPostgresStore(dsn string, log *logger.Logger) (*PostgresStore, error) {
	gl := gormLogger.New(
		stdLog(),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.AutoMigrate(
		&models.Wallet{},
		&models.Transaction{},
		&models.Name{},
		&models.Contract{},
		&models.Subscription{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	log.Info("Successfully connected to PostgreSQL with connection pool configured")
	return &PostgresStore{Conn: db, log: log}, nil
}

func stdLog() gormLogger.Writer {
	return log.New(os.Stdout, "\r\n", log.LstdFlags)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func (s *PostgresStore) GetWallet(address string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := s.Conn.Where("address = ?", address).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrWalletNotFound
		}
		return nil, fmt.Errorf("%w: get wallet: %v", models.ErrStore, err)
	}
	return &wallet, nil
}

func (s *PostgresStore) CreateWallet(address string, initialBalance float64) (*models.Wallet, error) {
	wallet := &models.Wallet{Address: address, Balance: initialBalance}
	if err := s.Conn.Create(wallet).Error; err != nil {
		return nil, fmt.Errorf("%w: create wallet: %v", models.ErrStore, err)
	}
	return wallet, nil
}

// transferInTx performs the debit/credit/insert of the 4.A ledger primitive
// against an already-open transaction, so callers that need to commit
// further writes alongside it (ContinueSub's reschedule) can do so
// atomically instead of running a second, independent transaction. Wallets
// are locked FOR UPDATE in address order to avoid deadlocking against a
// concurrent transfer running in the opposite direction.
func transferInTx(db *gorm.DB, from, to string, amount float64, kind models.TransactionType, meta TransferMeta) (*models.Transaction, error) {
	first, second := from, to
	if second < first {
		first, second = second, first
	}

	var locked [2]models.Wallet
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("address = ?", first).First(&locked[0]).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, addressNotFoundErr(first, from, to)
		}
		return nil, fmt.Errorf("%w: lock wallet: %v", models.ErrStore, err)
	}
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("address = ?", second).First(&locked[1]).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, addressNotFoundErr(second, from, to)
		}
		return nil, fmt.Errorf("%w: lock wallet: %v", models.ErrStore, err)
	}

	var sender, recipient *models.Wallet
	for i := range locked {
		if locked[i].Address == from {
			sender = &locked[i]
		}
		if locked[i].Address == to {
			recipient = &locked[i]
		}
	}
	if sender == nil {
		return nil, models.ErrSenderNotFound
	}
	if recipient == nil {
		return nil, models.ErrRecipientNotFound
	}
	if sender.Locked {
		return nil, models.ErrWalletLocked
	}

	if err := db.Model(sender).Updates(map[string]interface{}{
		"balance":   gorm.Expr("balance - ?", amount),
		"total_out": gorm.Expr("total_out + ?", amount),
	}).Error; err != nil {
		if isCheckViolation(err) {
			return nil, models.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("%w: debit sender: %v", models.ErrStore, err)
	}

	if err := db.Model(recipient).Updates(map[string]interface{}{
		"balance":  gorm.Expr("balance + ?", amount),
		"total_in": gorm.Expr("total_in + ?", amount),
	}).Error; err != nil {
		return nil, fmt.Errorf("%w: credit recipient: %v", models.ErrStore, err)
	}

	fromAddr := from
	tx := models.Transaction{
		From:         &fromAddr,
		To:           to,
		Amount:       amount,
		Type:         kind,
		Metadata:     meta.Metadata,
		Name:         meta.Name,
		SentName:     meta.SentName,
		SentMetaname: meta.SentMetaname,
	}
	if err := db.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("%w: insert transaction: %v", models.ErrStore, err)
	}
	return &tx, nil
}

// Transfer implements the 4.A ledger primitive's storage half.
func (s *PostgresStore) Transfer(from, to string, amount float64, kind models.TransactionType, meta TransferMeta) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.Conn.Transaction(func(db *gorm.DB) error {
		t, err := transferInTx(db, from, to, amount, kind, meta)
		if err != nil {
			return err
		}
		tx = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func addressNotFoundErr(missing, from, to string) error {
	if missing == from {
		return models.ErrSenderNotFound
	}
	if missing == to {
		return models.ErrRecipientNotFound
	}
	return models.ErrWalletNotFound
}

func (s *PostgresStore) TransferNoBalanceUpdate(from *string, to string, amount float64, kind models.TransactionType, meta TransferMeta) (*models.Transaction, error) {
	tx := models.Transaction{
		From:         from,
		To:           to,
		Amount:       amount,
		Type:         kind,
		Metadata:     meta.Metadata,
		Name:         meta.Name,
		SentName:     meta.SentName,
		SentMetaname: meta.SentMetaname,
	}
	if err := s.Conn.Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("%w: insert transaction: %v", models.ErrStore, err)
	}
	return &tx, nil
}

func (s *PostgresStore) GetName(name string) (*models.Name, error) {
	var row models.Name
	if err := s.Conn.Where("name = ?", name).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNameNotFound
		}
		return nil, fmt.Errorf("%w: get name: %v", models.ErrStore, err)
	}
	return &row, nil
}

func (s *PostgresStore) CreateName(name, owner string) (*models.Name, error) {
	row := &models.Name{Name: name, Owner: owner, OriginalOwner: owner}
	if err := s.Conn.Create(row).Error; err != nil {
		return nil, fmt.Errorf("%w: create name: %v", models.ErrStore, err)
	}
	return row, nil
}

func (s *PostgresStore) UpdateNameOwner(name, newOwner string) error {
	now := time.Now()
	res := s.Conn.Model(&models.Name{}).Where("name = ?", name).Updates(map[string]interface{}{
		"owner":            newOwner,
		"last_transferred": now,
		"last_updated":     now,
	})
	if res.Error != nil {
		return fmt.Errorf("%w: update name owner: %v", models.ErrStore, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNameNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateNameARecord(name string, aRecord *string) error {
	now := time.Now()
	res := s.Conn.Model(&models.Name{}).Where("name = ?", name).Updates(map[string]interface{}{
		"metadata":     aRecord,
		"last_updated": now,
	})
	if res.Error != nil {
		return fmt.Errorf("%w: update name a-record: %v", models.ErrStore, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNameNotFound
	}
	return nil
}

func (s *PostgresStore) CreateContract(c *models.Contract) error {
	if err := s.Conn.Create(c).Error; err != nil {
		return fmt.Errorf("%w: create contract: %v", models.ErrStore, err)
	}
	return nil
}

func (s *PostgresStore) GetContract(id int64) (*models.Contract, error) {
	var c models.Contract
	if err := s.Conn.Where("contract_id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrContractNotFound
		}
		return nil, fmt.Errorf("%w: get contract: %v", models.ErrStore, err)
	}
	return &c, nil
}

func (s *PostgresStore) UpdateContract(id int64, patch ContractPatch) (*models.Contract, error) {
	updates := map[string]interface{}{}
	if patch.Description.Set {
		updates["description"] = patch.Description.Value
	}
	if patch.Price.Set {
		updates["price"] = patch.Price.Value
	}
	if patch.CronExpr.Set {
		updates["cron_expr"] = patch.CronExpr.Value
	}
	if patch.MaxSubs.Set {
		updates["max_subscribers"] = patch.MaxSubs.Value
	}
	if patch.AllowList.Set {
		v, err := patch.AllowList.Value.Value()
		if err != nil {
			return nil, fmt.Errorf("%w: encode allow_list: %v", models.ErrStore, err)
		}
		updates["allow_list"] = v
	}
	if patch.Status.Set {
		updates["status"] = patch.Status.Value
	}

	if len(updates) > 0 {
		res := s.Conn.Model(&models.Contract{}).Where("contract_id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("%w: update contract: %v", models.ErrStore, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, models.ErrContractNotFound
		}
	}
	return s.GetContract(id)
}

func (s *PostgresStore) CreateSubscription(contractID int64, payer string, lapsedAt time.Time) (*models.Subscription, error) {
	sub := &models.Subscription{
		ContractID:   contractID,
		PayerAddress: payer,
		Status:       models.SubscriptionActive,
		LapsedAt:     &lapsedAt,
	}
	if err := s.Conn.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("%w: create subscription: %v", models.ErrStore, err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscription(id int64) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.Conn.Where("subscription_id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrDesync
		}
		return nil, fmt.Errorf("%w: get subscription: %v", models.ErrStore, err)
	}
	return &sub, nil
}

func (s *PostgresStore) CancelSubscription(subscriptionID int64) (int64, error) {
	res := s.Conn.Model(&models.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{"lapsed_at": nil, "status": models.SubscriptionCanceled})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: cancel subscription: %v", models.ErrStore, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) FetchSoonestLapsed(before time.Time) (*models.SubscriptionWithContract, error) {
	var row models.SubscriptionWithContract
	err := s.Conn.Table("subscriptions AS s").
		Select(`s.subscription_id, s.contract_id, s.payer_address, s.status, s.lapsed_at, s.started_at,
			c.status AS contract_status, c.price AS contract_price, c.owner_address AS contract_owner,
			c.cron_expr AS contract_cron_expr, c.allow_list AS contract_allow,
			COALESCE(w.balance, 0) AS payer_balance, (w.address IS NOT NULL) AS payer_wallet_found`).
		Joins("JOIN contracts c ON c.contract_id = s.contract_id").
		Joins("LEFT JOIN wallets w ON w.address = s.payer_address").
		Where("s.lapsed_at IS NOT NULL AND s.lapsed_at < ?", before).
		Order("s.lapsed_at ASC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("%w: fetch soonest lapsed: %v", models.ErrStore, err)
	}
	if row.SubscriptionID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *PostgresStore) FetchNextLapseTime(horizon time.Duration) (*time.Time, error) {
	var lapsedAt time.Time
	err := s.Conn.Model(&models.Subscription{}).
		Where("lapsed_at IS NOT NULL AND lapsed_at < ?", time.Now().Add(horizon)).
		Order("lapsed_at ASC").
		Limit(1).
		Pluck("lapsed_at", &lapsedAt).Error
	if err != nil {
		return nil, fmt.Errorf("%w: fetch next lapse time: %v", models.ErrStore, err)
	}
	if lapsedAt.IsZero() {
		return nil, nil
	}
	return &lapsedAt, nil
}

// ContinueSub performs the subscription-renewal transfer and reschedules
// lapsed_at in the same transaction (spec.md §4.F), so a crash or error
// between the two can never leave the payer debited while the subscription
// is still lapsed.
func (s *PostgresStore) ContinueSub(subscriptionID int64, from, to string, amount float64, kind models.TransactionType, meta TransferMeta, nextLapse time.Time) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.Conn.Transaction(func(db *gorm.DB) error {
		t, err := transferInTx(db, from, to, amount, kind, meta)
		if err != nil {
			return err
		}
		tx = t

		res := db.Model(&models.Subscription{}).
			Where("subscription_id = ?", subscriptionID).
			Update("lapsed_at", nextLapse)
		if res.Error != nil {
			return fmt.Errorf("%w: reschedule subscription: %v", models.ErrStore, res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrDesync
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
