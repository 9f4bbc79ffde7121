package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradefan/internal/store/model"
	"tradefan/internal/types"

	"gorm.io/gorm"
)

const credentialStatusActive = "Active"

// ListActiveSubscribers resolves all active subscriptions of a strategy,
// each joined with the user's active credential for the signal segment.
// Subscribers without a matching credential are still returned with a nil
// Credential so broker resolution fails per subscriber, not globally.
func (s *GormStore) ListActiveSubscribers(ctx context.Context, strategyID, segment string) ([]types.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	strategyID = strings.TrimSpace(strategyID)
	if strategyID == "" {
		return nil, fmt.Errorf("strategy id required")
	}
	var subs []model.SubscriptionModel
	if err := s.db.WithContext(ctx).
		Where("strategy_id = ? AND is_active = ?", strategyID, true).
		Order("user_id ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}

	userIDs := make([]int64, 0, len(subs))
	for _, sub := range subs {
		userIDs = append(userIDs, sub.UserID)
	}
	var keys []model.APIKeyModel
	if err := s.db.WithContext(ctx).
		Where("user_id IN ? AND segment = ? AND status = ?", userIDs, segment, credentialStatusActive).
		Find(&keys).Error; err != nil {
		return nil, err
	}
	credByUser := make(map[int64]model.APIKeyModel, len(keys))
	for _, k := range keys {
		if _, ok := credByUser[k.UserID]; !ok {
			credByUser[k.UserID] = k
		}
	}

	out := make([]types.Subscription, 0, len(subs))
	for _, sub := range subs {
		rec := subscriptionModelToRecord(sub)
		if key, ok := credByUser[sub.UserID]; ok {
			cred := apiKeyModelToRecord(key)
			rec.Credential = &cred
		}
		out = append(out, rec)
	}
	return out, nil
}

// ActiveCredential returns any active credential for the user, used by the
// price monitor which is not segment-scoped.
func (s *GormStore) ActiveCredential(ctx context.Context, userID int64) (types.Credential, bool, error) {
	if s == nil || s.db == nil {
		return types.Credential{}, false, fmt.Errorf("gorm store not initialized")
	}
	var key model.APIKeyModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, credentialStatusActive).
		Order("id ASC").
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Credential{}, false, nil
		}
		return types.Credential{}, false, err
	}
	return apiKeyModelToRecord(key), true, nil
}

// SubscriptionFor returns the subscription row for one (user, strategy)
// pair, without any credential join.
func (s *GormStore) SubscriptionFor(ctx context.Context, userID int64, strategyID string) (types.Subscription, bool, error) {
	if s == nil || s.db == nil {
		return types.Subscription{}, false, fmt.Errorf("gorm store not initialized")
	}
	var sub model.SubscriptionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND strategy_id = ?", userID, strategyID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Subscription{}, false, nil
		}
		return types.Subscription{}, false, err
	}
	return subscriptionModelToRecord(sub), true, nil
}

func subscriptionModelToRecord(m model.SubscriptionModel) types.Subscription {
	return types.Subscription{
		ID:         m.ID,
		UserID:     m.UserID,
		StrategyID: m.StrategyID,
		Qty:        m.Qty,
		Lots:       m.Lots,
		Active:     m.IsActive,
		SLEnabled:  m.SLEnabled,
		SLType:     types.SLTPType(strings.ToUpper(strings.TrimSpace(m.SLType))),
		SLValue:    m.SLValue,
		TPEnabled:  m.TPEnabled,
		TPType:     types.SLTPType(strings.ToUpper(strings.TrimSpace(m.TPType))),
		TPValue:    m.TPValue,
		ExitMode:   types.ExitMode(strings.ToUpper(strings.TrimSpace(m.ExitMode))),
	}
}

func apiKeyModelToRecord(m model.APIKeyModel) types.Credential {
	return types.Credential{
		ID:         m.ID,
		UserID:     m.UserID,
		Broker:     strings.TrimSpace(m.Broker),
		Segment:    strings.TrimSpace(m.Segment),
		APIKey:     m.APIKey,
		APISecret:  m.APISecret,
		Passphrase: m.Passphrase,
		Active:     m.Status == credentialStatusActive,
	}
}
