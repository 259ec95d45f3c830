// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Shipper, Agent}: full config tree parsed from YAML
//   - ShipperConfig: url, labels, min_level, connect/request timeouts,
//     tenant_id, auth, tls, compression, timestamp_precision,
//     max_diagnostic_body
//   - AgentConfig: workers, metrics_addr, default channel, self_channel
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env; Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (http://loki:3100, 2s
// connect, 5s request, debug min level, 4 workers), then validates required
// fields, label names and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It watches the file's directory so
// the rename→create pattern used by atomic-save editors (vim, VS Code) is
// seen, and coalesces the burst of events one save produces.
package config
