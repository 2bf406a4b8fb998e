// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"strings"

	"github.com/emicklei/go-restful/v3"
	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006-01-02 15:04:05.999999"

var logger = zap.Must(zap.NewDevelopment())

// Logger returns the process-wide logger.
func Logger() *zap.Logger {
	return logger
}

// EntityLogger returns a logger annotated with the entity under recomputation.
func EntityLogger(kind, id string) *zap.Logger {
	return logger.With(zap.String("kind", kind), zap.String("id", id))
}

// ResponseLogger returns a logger annotated with the request id of a response.
func ResponseLogger(resp *restful.Response) *zap.Logger {
	return logger.With(zap.String("request_id", resp.Header().Get("X-Request-ID")))
}

// CloseLogger flushes buffered entries.
func CloseLogger() {
	_ = logger.Sync()
}

func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-level", "", "minimal log level (debug, info, warn or error)")
	flagSet.String("log-format", "json", "format of log entries (json or console)")
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// SetLogger replaces the logger by flags. Debug mode logs debug entries to
// the console unless the level or format is set explicitly.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	format := "json"
	if debug {
		level.SetLevel(zap.DebugLevel)
		format = "console"
	}
	if flagSet.Changed("log-level") {
		text, _ := flagSet.GetString("log-level")
		if parsed, err := zapcore.ParseLevel(text); err == nil {
			level.SetLevel(parsed)
		}
	}
	if flagSet.Changed("log-format") {
		format, _ = flagSet.GetString("log-format")
	}

	var encoder zapcore.Encoder
	if format == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if path, _ := flagSet.GetString("log-path"); path != "" {
		maxSize, _ := flagSet.GetInt("log-max-size")
		maxAge, _ := flagSet.GetInt("log-max-age")
		maxBackups, _ := flagSet.GetInt("log-max-backups")
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
		}))
	}
	logger = zap.New(zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level))
}

const mysqlPrefix = "mysql://"

// RedactDBURL masks credentials in a data source name before it is logged.
func RedactDBURL(rawURL string) string {
	mask := func(s string) string { return strings.Repeat("x", len(s)) }
	if dsn, ok := strings.CutPrefix(rawURL, mysqlPrefix); ok {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return rawURL
		}
		parsed.User = mask(parsed.User)
		parsed.Passwd = mask(parsed.Passwd)
		return mysqlPrefix + parsed.FormatDSN()
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	if password, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(mask(parsed.User.Username()), mask(password))
	} else {
		parsed.User = url.User(mask(parsed.User.Username()))
	}
	return parsed.String()
}

// GetErrorHandler logs errors of OpenTelemetry exporters.
func GetErrorHandler() otel.ErrorHandler {
	return otel.ErrorHandlerFunc(func(err error) {
		Logger().Error("opentelemetry failure", zap.Error(err))
	})
}
