package models

// RedisCleaner drops cached copies of a reference entity.
type RedisCleaner interface {
	RemoveInstanceRedis() error
}

var (
	_ RedisCleaner = WorkCenter{}
	_ RedisCleaner = Product{}
	_ RedisCleaner = AppUser{}
)

func (obj WorkCenter) RemoveInstanceRedis() error {
	return ForgetLookupName(workCenterLookup.cachePrefix, obj.ID)
}

func (obj Product) RemoveInstanceRedis() error {
	return ForgetLookupName(productLookup.cachePrefix, obj.ID)
}

func (obj AppUser) RemoveInstanceRedis() error {
	return ForgetLookupName(userLookup.cachePrefix, obj.ID)
}
