package intelligence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"parley/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const extractionCachePrefix = "extract:"

// ExtractionStore remembers decoded answers by key.
type ExtractionStore interface {
	Get(ctx context.Context, key string) (*models.Extraction, bool, error)
	Set(ctx context.Context, key string, ext *models.Extraction) error
}

type RedisExtractionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisExtractionStore(client *redis.Client, ttl time.Duration) *RedisExtractionStore {
	return &RedisExtractionStore{client: client, ttl: ttl}
}

func (s *RedisExtractionStore) Get(ctx context.Context, key string) (*models.Extraction, bool, error) {
	data, err := s.client.Get(ctx, extractionCachePrefix+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ext models.Extraction
	if err := json.Unmarshal([]byte(data), &ext); err != nil {
		return nil, false, err
	}
	return &ext, true, nil
}

func (s *RedisExtractionStore) Set(ctx context.Context, key string, ext *models.Extraction) error {
	b, err := json.Marshal(ext)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, extractionCachePrefix+key, b, s.ttl).Err()
}

// CachingExtractor skips the model call for a prompt it has already answered.
// Store failures only cost a model call.
type CachingExtractor struct {
	Next   Extractor
	Store  ExtractionStore
	Logger *zap.Logger
}

func (c *CachingExtractor) Extract(ctx context.Context, raw string, ectx models.ExtractionContext) (*models.Extraction, error) {
	key := promptKey(BuildPrompt(raw, ectx))

	if ext, ok, err := c.Store.Get(ctx, key); err != nil {
		c.Logger.Warn("Extraction cache read failed", zap.Error(err))
	} else if ok {
		return ext, nil
	}

	ext, err := c.Next.Extract(ctx, raw, ectx)
	if err != nil {
		return nil, err
	}
	if err := c.Store.Set(ctx, key, ext); err != nil {
		c.Logger.Warn("Extraction cache write failed", zap.Error(err))
	}
	return ext, nil
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
