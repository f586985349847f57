package audio

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/fastingles-audio/internal/domain"
	"github.com/yungbote/fastingles-audio/internal/platform/dbctx"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

// ErrDuplicateIdentity is returned by Insert when a row for the identity
// already exists.
var ErrDuplicateIdentity = errors.New("audio cache: duplicate content identity")

type AudioCacheRepo interface {
	FindByIdentity(dbc dbctx.Context, identity string) (*types.AudioCache, error)
	ListByStorageKey(dbc dbctx.Context, storageKey string) ([]*types.AudioCache, error)
	Insert(dbc dbctx.Context, rec *types.AudioCache) error
	Delete(dbc dbctx.Context, rec *types.AudioCache) error
	DeleteByIdentity(dbc dbctx.Context, identity string) error
	IncrementAccess(dbc dbctx.Context, identity string) error
}

type audioCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAudioCacheRepo(db *gorm.DB, baseLog *logger.Logger) AudioCacheRepo {
	repoLog := baseLog.With("repo", "AudioCacheRepo")
	return &audioCacheRepo{db: db, log: repoLog}
}

func (r *audioCacheRepo) FindByIdentity(dbc dbctx.Context, identity string) (*types.AudioCache, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, nil
	}
	var rows []*types.AudioCache
	if err := dbc.Conn(r.db).
		Where("content_identity = ?", identity).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *audioCacheRepo) ListByStorageKey(dbc dbctx.Context, storageKey string) ([]*types.AudioCache, error) {
	var rows []*types.AudioCache
	if strings.TrimSpace(storageKey) == "" {
		return rows, nil
	}
	if err := dbc.Conn(r.db).
		Where("storage_key = ?", storageKey).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert runs inside its own (possibly nested) transaction so that a unique
// violation only rolls back to a savepoint and leaves an enclosing
// transaction usable for the follow-up lookup.
func (r *audioCacheRepo) Insert(dbc dbctx.Context, rec *types.AudioCache) error {
	if rec == nil {
		return errors.New("audio cache: nil record")
	}
	err := dbc.Conn(r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
	if isDuplicateKey(err) {
		return ErrDuplicateIdentity
	}
	return err
}

func (r *audioCacheRepo) Delete(dbc dbctx.Context, rec *types.AudioCache) error {
	if rec == nil {
		return nil
	}
	return r.DeleteByIdentity(dbc, rec.ContentIdentity)
}

func (r *audioCacheRepo) DeleteByIdentity(dbc dbctx.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return nil
	}
	return dbc.Conn(r.db).
		Where("content_identity = ?", identity).
		Delete(&types.AudioCache{}).Error
}

func (r *audioCacheRepo) IncrementAccess(dbc dbctx.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.AudioCache{}).
		Where("content_identity = ?", identity).
		Updates(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + ?", 1),
			"last_accessed_at": time.Now().UTC(),
		}).Error
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
