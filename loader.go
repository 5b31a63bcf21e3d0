package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// loadCached 从 Store 加载上次验证通过的配置，重新验证后才会生效。
func (c *Cache) loadCached(ctx context.Context) {
	defer close(c.ready)

	rec, err := c.store.Load(ctx)
	if errors.Is(err, ErrNoCache) {
		c.log.Debug("no cached config")
		return
	}
	if err != nil {
		// 损坏的缓存按 "没有缓存" 处理
		c.log.Warn("cached config is unreadable", "err", err)
		return
	}

	model, err := rec.Model()
	if err != nil {
		c.log.Warn("cached config data is invalid", "err", err)
		return
	}

	if err := c.verify(ctx, model); err != nil {
		c.log.Error("cached config failed verification", "err", err)
		return
	}

	// 仅当还没有刷新周期提交过新配置时才替换
	ss, ok := c.publish(c.initial, model)
	if !ok {
		c.log.Info("cached config superseded by refreshed config")
		return
	}
	c.log.Info("set active config to cached contents", slog.String("hash", ss.hash))
}

// Refresh 执行一次刷新周期：获取、验证、提交。
// 失败时当前配置和 Store 均保持不变。
func (c *Cache) Refresh(ctx context.Context) error {
	// 1. 获取
	model, err := c.fetcher.FetchConfig(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if model == nil {
		return fmt.Errorf("%w: empty response", ErrFetch)
	}

	// 2. 验证
	if err := c.verify(ctx, model); err != nil {
		return err
	}

	// 3. 原子更新，然后持久化
	ss, _ := c.publish(nil, model)
	if err := c.store.Save(ctx, model.Record()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	c.log.Info("config refreshed from remote",
		slog.String("hash", ss.hash),
		slog.String("keyId", model.KeyID),
		slog.Int("entries", len(model.Entries)))

	return nil
}

func (c *Cache) onTick() {
	err := c.Refresh(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrVerification):
		c.log.Error("fetched config failed verification, possible integrity problem", "err", err)
	case errors.Is(err, ErrPersist):
		c.log.Error("config applied but could not be persisted", "err", err)
	default:
		c.log.Warn("config could not be refreshed from remote", "err", err)
	}
}

// verify 验证模型签名。key 不在 KeyStore 中时从远端获取，
// 同一 keyId 的并发获取会被合并为一次。
func (c *Cache) verify(ctx context.Context, model *ConfigModel) error {
	if !model.Signed() {
		return ErrUnsigned
	}

	key, err := c.resolveKey(ctx, model.KeyID)
	if err != nil {
		return err
	}

	if !c.verifier.Verify(model.Signature, model.Payload(), key) {
		return fmt.Errorf("%w (key id %s)", ErrSignature, model.KeyID)
	}
	return nil
}

func (c *Cache) resolveKey(ctx context.Context, keyID string) (string, error) {
	if key, ok := c.keyStore.Key(keyID); ok {
		return key, nil
	}

	v, err, _ := c.keyGroup.Do(keyID, func() (any, error) {
		// 等待期间可能已被其他验证路径写入
		if key, ok := c.keyStore.Key(keyID); ok {
			return key, nil
		}
		km, err := c.fetcher.FetchKey(ctx, keyID)
		if err != nil {
			return nil, fmt.Errorf("%w (key id %s): %w", ErrKeyNotFound, keyID, err)
		}
		if km == nil || km.ID != keyID || km.Key == "" {
			return nil, fmt.Errorf("%w (key id %s): id mismatch", ErrKeyNotFound, keyID)
		}
		c.keyStore.AddKey(km.Key, keyID)
		c.log.Debug("added key to key store", slog.String("keyId", keyID))
		return km.Key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
