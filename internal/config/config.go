/**
 * @description
 * This package handles configuration for the esign-service. It uses Viper to
 * read everything from environment variables (with an optional .env file for
 * local development). Secrets — the provider service-account credentials and
 * the email API key — are never hardcoded anywhere else in the tree.
 *
 * @dependencies
 * - github.com/spf13/viper: environment-variable configuration.
 */
package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Target environments for the e-signature provider. The environment selects
// the OAuth host and the default REST base path.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Config holds all configuration for the esign-service, loaded from
// environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DocusignClientID     string `mapstructure:"DOCUSIGN_CLIENT_ID"`
	DocusignUserID       string `mapstructure:"DOCUSIGN_USER_ID"`
	DocusignPrivateKey   string `mapstructure:"DOCUSIGN_PRIVATE_KEY"`
	DocusignEnvironment  string `mapstructure:"DOCUSIGN_ENVIRONMENT"`
	DocusignTemplateID   string `mapstructure:"DOCUSIGN_TEMPLATE_ID"`
	DocusignRoleName     string `mapstructure:"DOCUSIGN_ROLE_NAME"`
	DocusignClientUserID string `mapstructure:"DOCUSIGN_CLIENT_USER_ID"`
	SigningReturnURL     string `mapstructure:"SIGNING_RETURN_URL"`

	SendgridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	EmailSender    string `mapstructure:"EMAIL_SENDER"`
	EmailSubject   string `mapstructure:"EMAIL_SUBJECT"`

	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`
}

// LoadConfig reads configuration from environment variables, with an optional
// .env file at the given path for local development.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DOCUSIGN_ENVIRONMENT", EnvSandbox)
	viper.SetDefault("DOCUSIGN_ROLE_NAME", "Member")
	viper.SetDefault("DOCUSIGN_CLIENT_USER_ID", "1000")

	for _, key := range []string{
		"SERVER_PORT",
		"DOCUSIGN_CLIENT_ID",
		"DOCUSIGN_USER_ID",
		"DOCUSIGN_PRIVATE_KEY",
		"DOCUSIGN_ENVIRONMENT",
		"DOCUSIGN_TEMPLATE_ID",
		"DOCUSIGN_ROLE_NAME",
		"DOCUSIGN_CLIENT_USER_ID",
		"SIGNING_RETURN_URL",
		"SENDGRID_API_KEY",
		"EMAIL_SENDER",
		"EMAIL_SUBJECT",
		"ALLOWED_ORIGIN",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		// The .env file is optional. A malformed one is logged but does not
		// stop the service; environment values still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.DocusignEnvironment = strings.ToLower(strings.TrimSpace(config.DocusignEnvironment))
	if config.DocusignEnvironment != EnvSandbox && config.DocusignEnvironment != EnvProduction {
		return config, fmt.Errorf("DOCUSIGN_ENVIRONMENT must be %q or %q, got %q", EnvSandbox, EnvProduction, config.DocusignEnvironment)
	}

	return config, nil
}

// AuthBaseURL returns the OAuth host for the configured environment.
func (c Config) AuthBaseURL() string {
	if c.DocusignEnvironment == EnvProduction {
		return "https://account.docusign.com"
	}
	return "https://account-d.docusign.com"
}

// DefaultAPIBaseURL returns the REST base used when account resolution yields
// no base_uri. The production default matches the original deployment's site.
func (c Config) DefaultAPIBaseURL() string {
	if c.DocusignEnvironment == EnvProduction {
		return "https://na4.docusign.net/restapi"
	}
	return "https://demo.docusign.net/restapi"
}

// Validate checks that every setting without a usable default is present.
func (c Config) Validate() error {
	missing := []string{}

	required := map[string]string{
		"DOCUSIGN_CLIENT_ID":   c.DocusignClientID,
		"DOCUSIGN_USER_ID":     c.DocusignUserID,
		"DOCUSIGN_PRIVATE_KEY": c.DocusignPrivateKey,
		"DOCUSIGN_TEMPLATE_ID": c.DocusignTemplateID,
		"SIGNING_RETURN_URL":   c.SigningReturnURL,
		"SENDGRID_API_KEY":     c.SendgridAPIKey,
		"EMAIL_SENDER":         c.EmailSender,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
