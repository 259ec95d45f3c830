// Package config loads the sink configuration from the `sink:` section of
// config.yaml (the `shipper:` and `agent:` keys are ignored by the sink binary).
//
// Config fields:
//   - HTTPPort           port for the push receiver and query API (default 3100)
//   - Auth.Mode          "apikey" or "none"
//   - Auth.KeyEnv        environment variable holding the expected API key
//   - Auth.Header        HTTP header name (default "x-api-key")
//   - Streams.TTL        how long an idle stream is kept (default 15m)
//   - Streams.MaxEntries entries kept per stream (default 1000)
//   - MaxBodyBytes       decompressed push body limit (default 4 MiB)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
