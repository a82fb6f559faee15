package models

import (
	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"gorm.io/gorm"
)

// Renames must not leave stale names in the lookup cache. A failed removal is
// logged only; the entry expires after the cache lifespan anyway.

func (w *WorkCenter) AfterUpdate(tx *gorm.DB) error {
	return removeCachedName(w.ID, w)
}

func (p *Product) AfterUpdate(tx *gorm.DB) error {
	return removeCachedName(p.ID, p)
}

func (u *AppUser) AfterUpdate(tx *gorm.DB) error {
	return removeCachedName(u.ID, u)
}

func removeCachedName(id uuid.UUID, obj RedisCleaner) error {
	if id == uuid.Nil {
		return nil
	}
	if err := obj.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "models", "AfterUpdate", "remove cached name", id, err)
	}
	return nil
}
