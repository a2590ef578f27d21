package cache

import (
	"fmt"
)

type EntityType string

const (
	EntityTransfer   EntityType = "transfer"
	EntitySettlement EntityType = "settlement"
	EntityRisk       EntityType = "risk"
)

type KeyType string

const (
	KeyCommitted KeyType = "committed"
	KeyLock      KeyType = "lock"
	KeyVelocity  KeyType = "velocity"
	KeyDevice    KeyType = "device"
)

// GenerateKey creates a standardized cache key
func GenerateKey(entity EntityType, keyType KeyType, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entity, keyType, value)
}

// CommittedKey is where a committed audit record is cached.
func CommittedKey(transferID string) string {
	return GenerateKey(EntityTransfer, KeyCommitted, transferID)
}

// LockKey names the per-transfer settlement lock.
func LockKey(transferID string) string {
	return GenerateKey(EntitySettlement, KeyLock, transferID)
}

func VelocityKey(sender string) string {
	return GenerateKey(EntityRisk, KeyVelocity, sender)
}

func DeviceKey(deviceID string) string {
	return GenerateKey(EntityRisk, KeyDevice, deviceID)
}
