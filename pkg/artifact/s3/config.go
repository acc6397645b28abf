// Package s3 implements artifact.Store on AWS S3 and S3-compatible storage.
package s3

// Config configures the S3 artifact backend.
//
// Authentication follows the AWS SDK v2 default chain unless explicit
// credentials are set. For S3-compatible stores (MinIO, Wasabi,
// DigitalOcean Spaces), set Endpoint and typically ForcePathStyle.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Prefix is prepended to every artifact key. Useful for sharing a
	// bucket with other data.
	Prefix string

	// Region is the AWS region. For AWS S3 it defaults to us-east-1
	// when not resolvable from environment or profile. When Endpoint
	// is set, no default is applied.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey
	// must also be set. Takes precedence over the default chain.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if
	// AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not
	// subdomain). Required for most S3-compatible stores.
	ForcePathStyle bool
}

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}

	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
