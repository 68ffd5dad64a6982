// Package config provides centralized configuration for the launcher, the
// license server and licensectl.
//
// # Configuration Sources
//
// Configuration is built in increasing order of precedence from:
//
//	1. Default() values
//	2. A YAML file (explicit path, $CS16_CONFIG_FILE, ./config.yaml,
//	   ./configs/config.yaml or <user config dir>/cs16client/config.yaml)
//	3. CS16_* environment variables
//
// # Environment Variables
//
// Variables follow the section layout of Config:
//
//	CS16_LAUNCHER_SERVER_URL=http://licenses.example.com
//	CS16_LAUNCHER_HEARTBEAT_INTERVAL=1s
//	CS16_LAUNCHER_TARGETS=xash3d-test,xash3d
//	CS16_SERVER_PORT=5000
//	CS16_SECURITY_ADMIN_TOKEN=...
//	CS16_STORAGE_KEY_BACKEND=sheets
//	CS16_LOGGING_LEVEL=debug
//
// Relative paths in the paths section are anchored at the config directory.
package config
