// Package redisstore keeps auto-save drafts in Redis hashes with a sliding TTL.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// AutoSaveRepo implements repository.AutoSaveRepository.
type AutoSaveRepo struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.AutoSaveRepository = (*AutoSaveRepo)(nil)

// NewAutoSaveRepo constructs a draft store; every save refreshes ttl.
func NewAutoSaveRepo(client *redis.Client, ttl time.Duration) *AutoSaveRepo {
	return &AutoSaveRepo{client: client, ttl: ttl}
}

func draftKey(caseID uuid.UUID, ft model.FormType) string {
	return fmt.Sprintf("autosave:%s:%s", caseID, ft)
}

// Save replaces the draft and returns the incremented version.
func (r *AutoSaveRepo) Save(ctx context.Context, d *model.AutoSaveDraft) (int64, error) {
	key := draftKey(d.CaseID, d.FormType)
	var ver *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		ver = p.HIncrBy(ctx, key, "version", 1)
		p.HSet(ctx, key,
			"form_data", string(d.FormData),
			"saved_at", d.SavedAt.UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ver.Val(), nil
}

// Get loads the draft or errs.ErrNotFound.
func (r *AutoSaveRepo) Get(ctx context.Context, caseID uuid.UUID, ft model.FormType) (*model.AutoSaveDraft, error) {
	vals, err := r.client.HGetAll(ctx, draftKey(caseID, ft)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if len(vals) == 0 {
		return nil, errs.ErrNotFound
	}
	d := &model.AutoSaveDraft{CaseID: caseID, FormType: ft}
	if fd := vals["form_data"]; fd != "" {
		d.FormData = []byte(fd)
	}
	if ts := vals["saved_at"]; ts != "" {
		if d.SavedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("draft %s saved_at: %w", draftKey(caseID, ft), err)
		}
	}
	if v := vals["version"]; v != "" {
		if d.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("draft %s version: %w", draftKey(caseID, ft), err)
		}
	}
	return d, nil
}

// Delete removes the draft; missing keys are fine.
func (r *AutoSaveRepo) Delete(ctx context.Context, caseID uuid.UUID, ft model.FormType) error {
	return r.client.Del(ctx, draftKey(caseID, ft)).Err()
}
