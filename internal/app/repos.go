package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/data/repos"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

type Repos struct {
	AudioCache repos.AudioCacheRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		AudioCache: repos.NewAudioCacheRepo(db, log),
	}
}
