// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	WARDEN_HOST="0.0.0.0"
//	WARDEN_PORT="8080"
//	WARDEN_READ_TIMEOUT="15s"
//	WARDEN_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	WARDEN_DB_PATH="/var/warden/warden.db"
//
// Session registry settings:
//
//	WARDEN_REDIS_URL="redis://localhost:6379"
//	WARDEN_REDIS_PASSWORD=""
//	WARDEN_REDIS_DB="0"
//	WARDEN_SESSION_TTL="24h"
//
// Auth settings:
//
//	WARDEN_JWT_SECRET="<required outside dev mode>"
//	WARDEN_TOKEN_EXPIRY="24h"
//	WARDEN_COOKIE_MAX_AGE="2160h"
//	WARDEN_MAX_LOGIN_ATTEMPTS="3"
//	WARDEN_LOCKOUT_DURATION="1h"
package config
