package config

import "os"

const (
	baseHostEnvVar     = "PARTNER_BASE_HOST"
	smsRecipientEnvVar = "PARTNER_SMS_RECIPIENT"
	smsPrefixEnvVar    = "PARTNER_SMS_PREFIX"
	downloadDirEnvVar  = "PARTNER_DOWNLOAD_DIR"
)

func defaultBaseHost() string {
	return GetEnv(baseHostEnvVar, "")
}

func defaultSMSRecipient() string {
	return GetEnv(smsRecipientEnvVar, "9220592205")
}

func defaultSMSPrefix() string {
	return GetEnv(smsPrefixEnvVar, "CGFWT")
}

func defaultDownloadDir() string {
	return GetEnv(downloadDirEnvVar, os.TempDir())
}

// GetEnv reads an environment variable, falling back to defaultValue when
// the variable is unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
