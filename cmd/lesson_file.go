package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/fastingles-audio/internal/services"
)

// lessonFile is the on-disk word list accepted by the lesson command.
type lessonFile struct {
	Category string   `yaml:"category"`
	Level    int      `yaml:"level"`
	Language string   `yaml:"language"`
	Provider string   `yaml:"provider"`
	Words    []string `yaml:"words"`
}

type lessonOverrides struct {
	Category string
	Level    int
	Language string
	Provider string
}

func loadLessonFile(path string) (lessonFile, error) {
	var lf lessonFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return lf, fmt.Errorf("read lesson file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return lf, fmt.Errorf("parse lesson file %s: %w", path, err)
	}
	return lf, nil
}

// buildLessonRequest merges the optional file with flag values. Non-empty
// flags win over file fields.
func buildLessonRequest(path, words string, o lessonOverrides) (services.LessonAudioRequest, error) {
	var lf lessonFile
	if strings.TrimSpace(path) != "" {
		loaded, err := loadLessonFile(path)
		if err != nil {
			return services.LessonAudioRequest{}, err
		}
		lf = loaded
	}
	for _, w := range strings.Split(words, ",") {
		if w = strings.TrimSpace(w); w != "" {
			lf.Words = append(lf.Words, w)
		}
	}
	if o.Category != "" {
		lf.Category = o.Category
	}
	if o.Level > 0 {
		lf.Level = o.Level
	}
	if o.Language != "" {
		lf.Language = o.Language
	}
	if o.Provider != "" {
		lf.Provider = o.Provider
	}

	if len(lf.Words) == 0 {
		return services.LessonAudioRequest{}, errors.New("no words given (use -file or -words)")
	}
	if strings.TrimSpace(lf.Category) == "" {
		return services.LessonAudioRequest{}, errors.New("category is required")
	}
	return services.LessonAudioRequest{
		Words:    lf.Words,
		Category: lf.Category,
		Level:    lf.Level,
		Language: lf.Language,
		Provider: lf.Provider,
	}, nil
}
