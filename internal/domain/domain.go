package domain

import (
	"github.com/yungbote/fastingles-audio/internal/domain/audio"
)

type AudioCache = audio.AudioCache

const MaxRawTextRunes = audio.MaxRawTextRunes

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&AudioCache{},
	}
}
