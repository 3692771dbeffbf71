// Package config provides centralized configuration management for the license core.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern LICENSECORE_<SECTION>_<FIELD>:
//
//	LICENSECORE_LICENSE_SERVER_URL=https://licenses.example.com/api
//	LICENSECORE_FINGERPRINT_ALGORITHM=sha512
//	LICENSECORE_STORAGE_DRIVER=sqlite
//	LICENSECORE_LOGGING_LEVEL=debug
//
// LICENSECORE_HOME relocates the state directory that holds persisted
// license state, logs and the default config file.
package config
