// Package config handles configuration loading for trace-assist.
//
// # Configuration File
//
// YAML with ${VAR} environment expansion and time.ParseDuration strings:
//
//	backend:
//	  base_url: "http://localhost:9090"
//	  request_timeout: "30s"
//	stream:
//	  max_retries: 5
//	  jitter: 0.2
//	  base_delay: "1s"
//	  max_delay: "30s"
//	session:
//	  db_path: "~/.local/share/trace-assist/state.db"
//	  retention: "720h"
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Load validates required fields (backend.base_url, session.db_path)
// and bounds (jitter in [0, 1)).
package config
