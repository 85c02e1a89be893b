package storage

import (
	"context"
	"fmt"
	"strings"
)

// Type identifies a storage provider.
type Type string

const (
	Bolt   Type = "bolt"
	Redis  Type = "redis"
	Memory Type = "memory"
)

// ServiceStorage describes the api for storage independent of DB providers.
// Writes are atomic per key in every implementation.
type ServiceStorage interface {
	Type() Type
	URI() string
	IsOpen() bool
	Close() error
	Write(ctx context.Context, namespace, key string, value []byte) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Exists(ctx context.Context, namespace, key string) (bool, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Option carries provider-specific settings from config. Bolt reads FilePath,
// redis reads Address and Password.
type Option struct {
	FilePath string
	Address  string
	Password string
}

// NewStorage instantiates the configured storage provider.
func NewStorage(storageProvider Type, option Option) (ServiceStorage, error) {
	switch storageProvider {
	case Bolt, "":
		filePath := option.FilePath
		if filePath == "" {
			filePath = DBFile
		}
		return NewBoltDB(filePath)
	case Redis:
		return NewRedisDB(option.Address, option.Password)
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", storageProvider)
	}
}

// MakeNamespace takes a set of possible namespace values and combines them as a convention
func MakeNamespace(ns ...string) string {
	return strings.Join(ns, "-")
}
