package models

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"gorm.io/gorm"
)

// LookupNameSet holds display names of reference entities shown next to events.
type LookupNameSet struct {
	workCenters map[uuid.UUID]string
	products    map[uuid.UUID]string
	users       map[uuid.UUID]string
}

func (n *LookupNameSet) WorkCenter(id uuid.UUID) string { return n.workCenters[id] }
func (n *LookupNameSet) Product(id uuid.UUID) string    { return n.products[id] }

func (n *LookupNameSet) User(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	name, ok := n.users[*id]
	if !ok {
		return nil
	}
	return &name
}

type lookupSource struct {
	cachePrefix string
	table       string
	column      string
}

var (
	workCenterLookup = lookupSource{cachePrefix: "WorkCenterName", table: "work_centers", column: "name"}
	productLookup    = lookupSource{cachePrefix: "ProductName", table: "products", column: "name"}
	userLookup       = lookupSource{cachePrefix: "UserName", table: "app_users", column: "display_name"}
)

// LookupNames resolves names through the redis cache, reading misses from db.
func LookupNames(ctx context.Context, db *gorm.DB, workCenterIds []uuid.UUID, productIds []uuid.UUID, userIds []uuid.UUID) (*LookupNameSet, error) {
	var (
		set LookupNameSet
		err error
	)
	if set.workCenters, err = workCenterLookup.resolve(ctx, db, workCenterIds); err != nil {
		return nil, err
	}
	if set.products, err = productLookup.resolve(ctx, db, productIds); err != nil {
		return nil, err
	}
	if set.users, err = userLookup.resolve(ctx, db, userIds); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s lookupSource) cacheKey(id uuid.UUID) string {
	return s.cachePrefix + ":" + id.String()
}

func (s lookupSource) resolve(ctx context.Context, db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	missing := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		name, ok, err := config.GetRedisValue(s.cacheKey(id))
		if err != nil {
			config.GetLogger().WithField("key", s.cacheKey(id)).Warn("lookup cache read failed: ", err)
		}
		if ok {
			names[id] = name
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}

	var rows []struct {
		ID   uuid.UUID
		Name string
	}
	err := db.WithContext(ctx).
		Table(s.table).
		Select("id, "+s.column+" AS name").
		Where("id IN ?", missing).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		names[r.ID] = r.Name
		if err := config.SetRedisValue(s.cacheKey(r.ID), r.Name, utils.GetCacheLifespan()); err != nil {
			config.GetLogger().WithField("key", s.cacheKey(r.ID)).Warn("lookup cache write failed: ", err)
		}
	}
	return names, nil
}

// ForgetLookupName drops a cached name after the reference entity was renamed.
func ForgetLookupName(kind string, id uuid.UUID) error {
	switch kind {
	case workCenterLookup.cachePrefix:
		return config.RemoveRedisKey(workCenterLookup.cacheKey(id))
	case productLookup.cachePrefix:
		return config.RemoveRedisKey(productLookup.cacheKey(id))
	case userLookup.cachePrefix:
		return config.RemoveRedisKey(userLookup.cacheKey(id))
	}
	return nil
}
