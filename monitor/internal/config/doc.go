// Package config loads and watches the prism-monitor configuration file.
//
// Top-level types:
//   - Config{Monitor, DataSource, Inbox, HTTP, GRPC, Webhooks, Log}
//   - DataSourceConfig: base_url, layout (simulator|gateway), timeout, auth, tls
//   - AuthConfig: mode (apikey|bearer|none), header, key_env, token_env;
//     Key() and Token() resolve from environment variables
//   - WebhookConfig: type (slack|teams|http), url_env, min_severity
//
// Load(path) reads the YAML file, applies defaults (5s poll, 10s fetch
// timeout, 50 alerts, port 8080), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory and calls
// onChange with the newly parsed Config after each settled write.
package config
