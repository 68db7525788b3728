package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"

	apperrors "github.com/rajkumarkushi/sartree-ecommerce/pkg/errors"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
)

// Persistence reads and writes JSON values in a KV. Storage failures never
// reach the caller: reads fall back to the caller's default and writes are
// logged and dropped.
type Persistence struct {
	kv     KV
	logger *slog.Logger
}

// NewPersistence creates a Persistence over kv.
func NewPersistence(kv KV, log *slog.Logger) *Persistence {
	return &Persistence{kv: kv, logger: log}
}

// Read decodes the value under key into dst. It returns false, leaving dst
// untouched, when the key is missing or holds malformed JSON.
func (p *Persistence) Read(ctx context.Context, key string, dst any) bool {
	data, err := p.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.WithContext(ctx, p.logger).Warn("read local state failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	// Decode into a scratch value so a bad payload cannot half-fill dst.
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return false
	}
	scratch := reflect.New(target.Type().Elem())
	if err := json.Unmarshal(data, scratch.Interface()); err != nil {
		p.malformed(ctx, key, err)
		return false
	}
	if string(bytes.TrimSpace(data)) == "null" {
		return false
	}
	target.Elem().Set(scratch.Elem())
	return true
}

// Write encodes v as JSON under key.
func (p *Persistence) Write(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.WithContext(ctx, p.logger).Warn("encode local state failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.kv.Set(ctx, key, data); err != nil {
		logger.WithContext(ctx, p.logger).Warn("write local state failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Remove deletes key.
func (p *Persistence) Remove(ctx context.Context, key string) {
	if err := p.kv.Delete(ctx, key); err != nil {
		logger.WithContext(ctx, p.logger).Warn("remove local state failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Persistence) malformed(ctx context.Context, key string, err error) {
	logger.WithContext(ctx, p.logger).Warn("malformed local state ignored",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
