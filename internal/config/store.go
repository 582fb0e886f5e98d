package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parkdesk/auth-go/token"
	"github.com/redis/go-redis/v9"
)

const (
	StoreTypeMemory string = "memory"
	StoreTypeFile   string = "file"
	StoreTypeRedis  string = "redis"
	StoreTypeSSM    string = "ssm"
)

type StoreConfig struct {
	Type  string
	Path  string
	Redis RedisConfig
	SSM   SSMConfig
}

type RedisConfig struct {
	Addresses []string
	Password  RedactedString
	DBIndex   int
	KeyPrefix string
	TTL       time.Duration
}

type SSMConfig struct {
	Region string
	Path   string
}

func (c StoreConfig) Validate() error {
	switch c.Type {
	case StoreTypeMemory:
	case StoreTypeFile:
		if c.Path == "" {
			return fmt.Errorf("store.path is required for the file store")
		}
	case StoreTypeRedis:
		if len(c.Redis.Addresses) == 0 {
			return fmt.Errorf("store.redis.addresses cannot be empty")
		}
	case StoreTypeSSM:
		if c.SSM.Region == "" || c.SSM.Path == "" {
			return fmt.Errorf("store.ssm.region and store.ssm.path are required")
		}
	default:
		return fmt.Errorf("unrecognized store type %q", c.Type)
	}
	return nil
}

// TokenStore builds the store selected by Type.
func (c StoreConfig) TokenStore() (token.Store, error) {
	switch c.Type {
	case StoreTypeMemory:
		return token.NewMemoryStore(), nil
	case StoreTypeFile:
		return token.NewFileStore(expandHome(c.Path)), nil
	case StoreTypeRedis:
		return token.NewRedisStore(c.Redis.client(), token.WithKeyPrefix(c.Redis.KeyPrefix), token.WithTTL(c.Redis.TTL)), nil
	case StoreTypeSSM:
		return token.NewSSMStoreForRegion(c.SSM.Region, c.SSM.Path)
	default:
		return nil, fmt.Errorf("unrecognized store type %q", c.Type)
	}
}

// client returns a plain client for a single address and a cluster client
// for several.
func (c RedisConfig) client() redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addresses,
		Password: string(c.Password),
		DB:       c.DBIndex,
	})
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
