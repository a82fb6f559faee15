package utils

import (
	"os"
	"reflect"
	"strconv"
	"time"
)

// GetCacheLifespan reads CACHE_LIFESPAN in hours, default 1.
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// ImportLockKey is the redis lock guarding CSV imports of one production day.
func ImportLockKey(productionDayId string) string {
	return "ImportLock:ProductionDay:" + productionDayId
}

// SessionTokenKey maps a session token to a user id.
func SessionTokenKey(token string) string {
	return "Token:" + token
}
