package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/bsonctl/internal/logging"
)

// InitLogger configures the runtime logger and tags it with app. Output goes
// to stderr so stdout stays free for documents.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
