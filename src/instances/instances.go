package instances

import (
	"errors"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"orderengine/src/connectors"
	"orderengine/src/database"
	"orderengine/src/model"
	"orderengine/src/registry"
	"orderengine/src/security"
)

// AccountAdapter is the heavyweight per-account service object: decrypted
// broker gateway plus a settings cache. One instance exists per account id,
// enforced by the registry.
type AccountAdapter struct {
	AccountID uint

	mu       sync.RWMutex
	settings *model.Account
	gateway  connectors.BrokerGateway
}

// Gateway returns the broker gateway built from the account's credentials.
func (a *AccountAdapter) Gateway() connectors.BrokerGateway {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gateway
}

// Settings returns the cached account settings, or nil after invalidation.
func (a *AccountAdapter) Settings() *model.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// ClearSettingsCache drops the cached settings so nothing stale survives an
// eviction. The next adapter construction reloads from the store.
func (a *AccountAdapter) ClearSettingsCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = nil
}

// HasCachedSettings reports whether settings are currently cached.
func (a *AccountAdapter) HasCachedSettings() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings != nil
}

// ExpertAdapter caches the settings of one expert instance.
type ExpertAdapter struct {
	ExpertID uint

	mu       sync.RWMutex
	settings *model.ExpertInstance
}

func (e *ExpertAdapter) Settings() *model.ExpertInstance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

func (e *ExpertAdapter) ClearSettingsCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = nil
}

func (e *ExpertAdapter) HasCachedSettings() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings != nil
}

// Manager owns the per-entity registries. It is constructed once at process
// start and passed by injection to consumers; there is no hidden global
// state, which keeps the registries independently testable and resettable.
type Manager struct {
	db       *gorm.DB
	accounts *registry.Registry[*AccountAdapter]
	experts  *registry.Registry[*ExpertAdapter]
}

// NewManager builds a manager over the main database.
func NewManager() *Manager {
	return NewManagerWithDB(database.MainDB)
}

// NewManagerWithDB allows injecting the database, used by tests.
func NewManagerWithDB(db *gorm.DB) *Manager {
	return &Manager{
		db:       db,
		accounts: registry.New[*AccountAdapter]("accounts"),
		experts:  registry.New[*ExpertAdapter]("experts"),
	}
}

// AccountAdapter returns the single adapter instance for the account,
// constructing it on first use: settings load, credential decryption, gateway
// build.
func (m *Manager) AccountAdapter(accountID uint) (*AccountAdapter, error) {
	return m.accounts.GetOrCreate(accountID, m.buildAccountAdapter, false)
}

// RefreshAccountAdapter forces a fresh adapter, used after settings change.
func (m *Manager) RefreshAccountAdapter(accountID uint) (*AccountAdapter, error) {
	return m.accounts.GetOrCreate(accountID, m.buildAccountAdapter, true)
}

func (m *Manager) buildAccountAdapter(accountID uint) (*AccountAdapter, error) {
	var account model.Account
	if err := m.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d not found", accountID)
		}
		return nil, err
	}
	if !account.Enabled {
		return nil, fmt.Errorf("account %d is disabled", accountID)
	}
	if account.APIKeyEncrypted == "" || account.APISecretEncrypted == "" {
		return nil, fmt.Errorf("account %d has no broker credentials", accountID)
	}

	apiKey, err := security.DecryptString(account.APIKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API key: %w", err)
	}
	apiSecret, err := security.DecryptString(account.APISecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt API secret: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"component":  "instances",
		"account_id": accountID,
		"broker":     account.Broker,
	}).Info("Account adapter constructed")

	return &AccountAdapter{
		AccountID: accountID,
		settings:  &account,
		gateway: connectors.NewRESTBroker(apiKey, apiSecret,
			account.BaseURL, account.SupportsBracketOrders),
	}, nil
}

// ExpertAdapter returns the single adapter instance for the expert.
func (m *Manager) ExpertAdapter(expertID uint) (*ExpertAdapter, error) {
	return m.experts.GetOrCreate(expertID, func(id uint) (*ExpertAdapter, error) {
		var expert model.ExpertInstance
		if err := m.db.First(&expert, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("expert instance %d not found", id)
			}
			return nil, err
		}
		return &ExpertAdapter{ExpertID: id, settings: &expert}, nil
	}, false)
}

// GatewayForAccount implements the trigger service's GatewayProvider.
func (m *Manager) GatewayForAccount(accountID uint) (connectors.BrokerGateway, error) {
	adapter, err := m.AccountAdapter(accountID)
	if err != nil {
		return nil, err
	}
	return adapter.Gateway(), nil
}

// InvalidateAccount evicts the account adapter after clearing its settings
// cache.
func (m *Manager) InvalidateAccount(accountID uint) {
	m.accounts.Invalidate(accountID)
}

// InvalidateExpert evicts the expert adapter.
func (m *Manager) InvalidateExpert(expertID uint) {
	m.experts.Invalidate(expertID)
}

// Clear evicts everything, for full-reset scenarios.
func (m *Manager) Clear() {
	m.accounts.Clear()
	m.experts.Clear()
}

// Stats reports both registries for diagnostics.
func (m *Manager) Stats() map[string]registry.Stats {
	return map[string]registry.Stats{
		"accounts": m.accounts.Stats(),
		"experts":  m.experts.Stats(),
	}
}
