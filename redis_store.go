package remoteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore 把已验证配置存储在 Redis Hash 中，
// 供同一宿主上的多个进程共享最近一次验证通过的配置。
type RedisStore struct {
	rdb        *redis.Client
	name       string
	maxHistory int64
	log        *slog.Logger
}

// NewRedisStore 创建 Redis 存储。
// client: Redis 客户端实例（外部传入，DI）。
// name: 记录名，通常是 app id。
func NewRedisStore(client *redis.Client, name string, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{
		rdb:        client,
		name:       name,
		maxHistory: DefaultHistoryMaxSize,
		log:        log,
	}
}

// Load 读取 Redis 中的记录，Key 不存在时返回 ErrNoCache。
func (s *RedisStore) Load(ctx context.Context) (*CachedRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, KeyCache(s.name)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cached record failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoCache
	}

	config, ok := fields[FieldConfig]
	if !ok || config == "" {
		return nil, fmt.Errorf("%w: missing %s field", ErrCorruptCache, FieldConfig)
	}

	return &CachedRecord{
		Config:    []byte(config),
		KeyID:     fields[FieldKeyID],
		Signature: fields[FieldSignature],
	}, nil
}

// Save 在一个 MULTI/EXEC 事务中写入记录并追加历史，
// 读者只会看到完整的旧记录或新记录。
func (s *RedisStore) Save(ctx context.Context, rec CachedRecord) error {
	hash := CalculateHash8(rec.Config)

	histJSON, err := json.Marshal(HistoryRecord{
		Hash:      hash,
		KeyID:     rec.KeyID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal history record failed: %w", err)
	}

	historyKey := KeyHistory(s.name)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, KeyCache(s.name),
			FieldConfig, rec.Config,
			FieldKeyID, rec.KeyID,
			FieldSignature, rec.Signature,
			FieldHash, hash,
		)
		pipe.RPush(ctx, historyKey, histJSON)
		pipe.LTrim(ctx, historyKey, -s.maxHistory, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save cached record: %w", err)
	}

	s.log.Debug("wrote config to redis",
		slog.String("key", KeyCache(s.name)),
		slog.String("hash", hash))

	return nil
}

// History 返回提交历史，最早的在前。
func (s *RedisStore) History(ctx context.Context) ([]HistoryRecord, error) {
	raw, err := s.rdb.LRange(ctx, KeyHistory(s.name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get history failed: %w", err)
	}
	records := make([]HistoryRecord, 0, len(raw))
	for _, item := range raw {
		var rec HistoryRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal history record failed: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
