// Package ingest decodes newline-delimited JSON log records into
// types.Record values for the agent.
//
// The accepted shape is the one Monolog's JsonFormatter writes:
//
//	{"message":"...","context":{...},"level":400,"level_name":"ERROR",
//	 "channel":"local","datetime":"2024-03-01T12:00:00.123456+00:00","extra":{...}}
//
// "msg" is accepted for "message", "time"/"timestamp" for "datetime", and
// "level" may be a name or a Monolog number. Missing channel falls back to
// the decoder default; missing or unparseable datetime falls back to the
// decode time.
package ingest
