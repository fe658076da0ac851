package storage

import (
	"github.com/iamNilotpal/ignite/pkg/options"
	"go.uber.org/zap"
)

// Config encapsulates all the configuration parameters required to
// initialize a Store instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}
