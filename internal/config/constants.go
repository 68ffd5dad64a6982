package config

import "time"

// Application constants
const (
	AppName   = "CS16 Client"
	EnvPrefix = "CS16"

	// Directory under the user config dir
	AppDirName = "cs16client"

	// Preferences store holding the license key
	PrefsFileName   = "cs16_license.json"
	PrefsKeyLicense = "license_key"

	// License server defaults
	DefaultServerURL         = "http://72.60.130.39"
	DefaultRequestTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = time.Second
	DefaultHeartbeatTimeout  = 5 * time.Second
	DefaultActiveWindow      = 5 * time.Second

	// Engine handoff defaults
	DefaultReleaseURL    = "https://github.com/FWGS/xash3d-fwgs/releases/tag/continuous"
	DefaultGameDir       = "cstrike"
	DefaultLaunchArgs    = "-dev 2 -log -dll @yapb"
	DefaultCallerPackage = "su.xash.cs16client"

	// Key backends for the license server
	KeyBackendFile   = "file"
	KeyBackendSheets = "sheets"

	// HTTP headers
	HeaderAdminToken = "X-Admin-Token"
	HeaderLicenseKey = "X-License-Key"
	HeaderRequestID  = "X-Request-ID"

	// Server data files
	AuthorizedKeysFile = "authorized_keys.json"
	BansFile           = "bans.json"
	ConnectionsFile    = "connections.json"
	FailedLoginsFile   = "failed_logins.json"
	AttemptsFile       = "attempts.log"
)
