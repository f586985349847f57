package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/jobs"
	"github.com/yungbote/fastingles-audio/internal/modules/audio/keys"
	"github.com/yungbote/fastingles-audio/internal/observability"
	"github.com/yungbote/fastingles-audio/internal/platform/dbctx"
)

// EnsureLessonAudio schedules GenerateLessonAudio in the background and
// returns once the batch is queued.
func (s *audioCacheService) EnsureLessonAudio(ctx context.Context, req LessonAudioRequest) error {
	if _, err := s.synths.Resolve(req.Provider); err != nil {
		return err
	}
	req.Words = append([]string(nil), req.Words...)
	task := jobs.Task{
		Name: fmt.Sprintf("lesson_audio:%s:level_%d", req.Category, req.Level),
		Run: func(ctx context.Context) error {
			_, err := s.GenerateLessonAudio(ctx, req)
			return err
		},
	}
	if err := s.runner.Submit(ctx, task); err != nil {
		return fmt.Errorf("schedule lesson audio: %w", err)
	}
	s.log.Info("Lesson audio batch scheduled", "words", len(req.Words), "category", req.Category, "level", req.Level)
	return nil
}

// GenerateLessonAudio runs every word through the cache inside one
// transaction. Each word gets its own savepoint so a failing word is rolled
// back and counted without aborting the rest. Hits do not count as accesses.
func (s *audioCacheService) GenerateLessonAudio(ctx context.Context, req LessonAudioRequest) (BatchResult, error) {
	var res BatchResult
	synth, err := s.synths.Resolve(req.Provider)
	if err != nil {
		return res, err
	}

	ctx, span := observability.Tracer().Start(ctx, "audio.GenerateLessonAudio")
	defer span.End()

	start := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, word := range req.Words {
			if err := ctx.Err(); err != nil {
				return err
			}
			if strings.TrimSpace(word) == "" {
				continue
			}
			res.Total++

			item, identity, err := normalizeEnsure(EnsureAudioRequest{
				Text:     word,
				Language: req.Language,
				Category: req.Category,
				Level:    req.Level,
				Kind:     keys.KindWord,
			})
			if err != nil {
				res.Failed++
				s.log.Error("Lesson audio word rejected", "word", word, "error", err)
				continue
			}

			var out *EnsureAudioResult
			werr := tx.Transaction(func(wtx *gorm.DB) error {
				wdbc := dbc.WithTx(wtx)
				r, err := s.serveFromCache(wdbc, item, identity, false)
				if err != nil {
					return err
				}
				if r == nil {
					r, err = s.generateAndStore(wdbc, item, identity, synth)
					if err != nil {
						return err
					}
				}
				out = r
				return nil
			})
			if werr != nil {
				res.Failed++
				s.log.Error("Lesson audio word failed, skipping", "word", word, "error", werr)
				continue
			}
			if out.Cached {
				res.Skipped++
			} else {
				res.Generated++
			}
		}
		return nil
	})

	span.SetAttributes(
		attribute.Int("batch.total", res.Total),
		attribute.Int("batch.generated", res.Generated),
		attribute.Int("batch.failed", res.Failed),
	)
	s.metrics.ObserveBatch(res.Generated, res.Skipped, res.Failed, time.Since(start))
	if err != nil {
		s.log.Error("Lesson audio batch aborted", "category", req.Category, "level", req.Level, "error", err)
		span.RecordError(err)
		return res, fmt.Errorf("lesson audio batch: %w", err)
	}
	s.log.Info("Lesson audio batch completed",
		"category", req.Category,
		"level", req.Level,
		"total", res.Total,
		"generated", res.Generated,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"duration", time.Since(start).String(),
	)
	return res, nil
}
