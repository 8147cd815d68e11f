package badgerdb

import (
	"fmt"
	"strings"

	"github.com/celer-network/aave-gas-station/log"
)

// extendedLog routes badger's printf style logging into the module logger.
type extendedLog struct {
	*log.Logger
}

func (l *extendedLog) Errorf(f string, v ...interface{}) {
	l.Error().Msg(trim(f, v...))
}

func (l *extendedLog) Warningf(f string, v ...interface{}) {
	l.Warn().Msg(trim(f, v...))
}

func (l *extendedLog) Infof(f string, v ...interface{}) {
	// badger is chatty at info
	l.Debug().Msg(trim(f, v...))
}

func (l *extendedLog) Debugf(f string, v ...interface{}) {
	l.Debug().Msg(trim(f, v...))
}

func trim(f string, v ...interface{}) string {
	return strings.TrimSuffix(fmt.Sprintf(f, v...), "\n")
}
