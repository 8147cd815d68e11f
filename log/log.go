/*
Package log provides module scoped zerolog loggers configured from a toml file.

All fields are optional; an absent file yields info level json logs on stderr.

 # default level for every module: debug/info/warn/error/fatal/panic
 level = "info"

 # json, console or console_no_color
 formatter = "console"

 # print source file and line
 caller = false

 # time layout of the timestamp field, see time/format.go
 timefieldformat = "2006-01-02T15:04:05Z07:00"

 # stdout, stderr or a file path
 out = "stderr"

 # per module overrides, only level and out are honoured
 [gasstation]
 level = "debug"
 out = "/var/log/gasstation/sponsorships.log"

The file is searched as gaslog.toml in the working directory, or taken from
the GASSTATION_LOGCONFIG environment variable.
*/
package log

import (
	"errors"
	"os"
	"strings"
	"sync"

	colorable "github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	confFilePathKey     = "LOGCONFIG"
	confEnvPrefix       = "GASSTATION"
	defaultConfFileName = "gaslog"
)

var (
	baseLogger = zerolog.New(os.Stderr)
	baseLevel  = zerolog.InfoLevel
	logInitMu  sync.Mutex
	isLogInit  = false
	viperConf  = viper.New()
)

// Logger is a zerolog logger tagged with the module that owns it.
type Logger struct {
	*zerolog.Logger
	name  string
	level zerolog.Level
}

func loadConfigFile() {
	viperConf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperConf.SetEnvPrefix(confEnvPrefix)
	viperConf.AutomaticEnv()

	viperConf.SetConfigType("toml")
	viperConf.SetConfigName(defaultConfFileName)
	viperConf.AddConfigPath(".")

	if path := viperConf.GetString(confFilePathKey); path != "" {
		viperConf.SetConfigFile(path)
		baseLogger.Info().Str("file", path).Msg("Init logger from configuration file")
	}

	if err := viperConf.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			baseLogger.Error().Err(err).Msg("Failed to read logger config file")
		}
	}
}

func initLog() {
	if layout := viperConf.GetString("timefieldformat"); layout != "" {
		zerolog.TimeFieldFormat = layout
	}

	out := os.Stderr
	if name := viperConf.GetString("out"); name != "" {
		o, err := getOutput(name)
		if err != nil {
			baseLogger.Warn().Err(err).Str("out", name).Msg("Failed to open log output, keeping stderr")
		} else {
			out = o
		}
	}
	baseLogger = baseLogger.Output(out)

	switch formatter := strings.ToLower(viperConf.GetString("formatter")); formatter {
	case "", "json":
	case "console":
		baseLogger = baseLogger.Output(zerolog.ConsoleWriter{
			Out: colorable.NewColorable(out), TimeFormat: zerolog.TimeFieldFormat})
	case "console_no_color":
		baseLogger = baseLogger.Output(zerolog.ConsoleWriter{
			Out: out, NoColor: true, TimeFormat: zerolog.TimeFieldFormat})
	default:
		baseLogger.Warn().Str("formatter", formatter).Msg("Unknown formatter, using json. Allowed: console/console_no_color/json")
	}

	if viperConf.GetBool("caller") {
		baseLogger = baseLogger.With().Caller().Logger()
	}

	baseLevel = parseLevel(viperConf.GetString("level"), zerolog.InfoLevel)
	baseLogger = baseLogger.With().Timestamp().Logger().Level(baseLevel)
}

func parseLevel(level string, fallback zerolog.Level) zerolog.Level {
	if level == "" {
		return fallback
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		baseLogger.Warn().Err(err).Str("level", level).Msg("Invalid log level")
		return fallback
	}
	return l
}

func ensureInit() {
	if isLogInit {
		return
	}
	loadConfigFile()
	initLog()
	isLogInit = true
}

// NewLogger returns a logger whose entries carry module=moduleName. A toml
// table named after the module may override its level and output.
func NewLogger(moduleName string) *Logger {
	logInitMu.Lock()
	defer logInitMu.Unlock()
	ensureInit()

	zLogger := baseLogger.With().Str("module", moduleName).Logger()
	zLevel := baseLevel

	if sub := viperConf.Sub(moduleName); sub != nil {
		if name := sub.GetString("out"); name != "" {
			if out, err := getOutput(name); err == nil {
				zLogger = zLogger.Output(out)
			} else {
				baseLogger.Warn().Err(err).Str("out", name).Str("module", moduleName).Msg("Failed to open module log output")
			}
		}
		if level := sub.GetString("level"); level != "" {
			zLevel = parseLevel(level, zerolog.InfoLevel)
			zLogger = zLogger.Level(zLevel)
		}
	}

	return &Logger{
		Logger: &zLogger,
		name:   moduleName,
		level:  zLevel,
	}
}

// Default returns the base logger without a module tag. It reads the same
// configuration file as NewLogger.
func Default() *Logger {
	logInitMu.Lock()
	defer logInitMu.Unlock()
	ensureInit()

	return &Logger{
		Logger: &baseLogger,
		level:  baseLevel,
	}
}

var errEmptyName = errors.New("empty output name")

// getOutput resolves stdout, stderr or a file path opened for appending.
func getOutput(outName string) (*os.File, error) {
	switch outName {
	case "":
		return nil, errEmptyName
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(outName, os.O_WRONLY|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0644)
	}
}

func (logger *Logger) IsDebugEnabled() bool {
	return logger.level <= zerolog.DebugLevel
}

func (logger *Logger) Level() string {
	return logger.level.String()
}

func (logger *Logger) Name() string {
	return logger.name
}
