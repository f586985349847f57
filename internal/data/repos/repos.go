package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/data/repos/audio"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

type AudioCacheRepo = audio.AudioCacheRepo

var ErrDuplicateIdentity = audio.ErrDuplicateIdentity

func NewAudioCacheRepo(db *gorm.DB, baseLog *logger.Logger) AudioCacheRepo {
	return audio.NewAudioCacheRepo(db, baseLog)
}
