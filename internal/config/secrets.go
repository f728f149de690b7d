package config

const redacted = "***"

// RedactedConfig returns a copy of cfg with every secret masked, for
// logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.FHE.APIKey)
	redact(&out.FHE.APISecret)
	redact(&out.FHE.APIPassphrase)
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Operations = append([]string(nil), cfg.Notify.Operations...)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
