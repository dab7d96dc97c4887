package logging

import (
	"log/slog"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// AUTH EVENTS (AUTH*)
	AUTH_LOGIN  LogCode = "AUTH_LOGIN"
	AUTH_SIGNUP LogCode = "AUTH_SIGNUP"

	// ENTITY OPERATIONS (ENTITY*)
	ENTITY_CREATE      LogCode = "ENTITY_CREATE"
	ENTITY_UPDATE      LogCode = "ENTITY_UPDATE"
	ENTITY_DELETE      LogCode = "ENTITY_DELETE"
	ENTITY_BULK_DELETE LogCode = "ENTITY_BULK_DELETE"

	// DATA OPERATIONS (DATA*)
	DATA_FIXTURES LogCode = "DATA_FIXTURES"
)

const CodeKey = "code"

func Code(code LogCode) slog.Attr {
	return slog.String(CodeKey, string(code))
}

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}
