package database

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormWriter forwards GORM's slow-query and error lines to zerolog.
type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// gormConfig returns the shared GORM settings. Misses are an expected result
// of lookups such as the DM search, so they are not logged.
func gormConfig(w logger.Writer) *gorm.Config {
	if w == nil {
		w = gormWriter{logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "gorm").Logger()}
	}
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(w, logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}
