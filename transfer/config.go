// Package transfer implements the Upload Coordinator, Download
// Coordinator, and Lifecycle Policy: the stateless request handlers
// that sit between the HTTP layer and the Blob Broker / Metadata Store
// Adapter. Config follows the mapstructure-tagged
// DefaultConfig()/Validate() shape used throughout the storagex
// example for its own Config, adapted to this domain's limits instead
// of an object-store client's.
package transfer

import "fmt"

// Config holds the tunable limits and defaults enforced by the Upload
// and Download Coordinators.
type Config struct {
	// MaxFileSize is the upper bound enforced at plan time.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`

	// MaxExpireSeconds clamps the requested TTL.
	MaxExpireSeconds int64 `mapstructure:"max_expire_seconds" yaml:"max_expire_seconds"`

	// DefaultExpireSeconds is used when the client omits timeLimit.
	DefaultExpireSeconds int64 `mapstructure:"default_expire_seconds" yaml:"default_expire_seconds"`

	// MaxDownloads clamps the requested dlimit.
	MaxDownloads int64 `mapstructure:"max_downloads" yaml:"max_downloads"`

	// DefaultDownloads is used when the client omits dlimit.
	DefaultDownloads int64 `mapstructure:"default_downloads" yaml:"default_downloads"`

	// MultipartThreshold is the file size above which a multipart plan
	// is chosen instead of a single PUT.
	MultipartThreshold int64 `mapstructure:"multipart_threshold" yaml:"multipart_threshold"`

	// DefaultPartSize is the starting point for the part-size
	// algorithm.
	DefaultPartSize int64 `mapstructure:"default_part_size" yaml:"default_part_size"`

	// MaxParts is the ceiling on the number of parts a plan may use
	// before the algorithm grows partSize.
	MaxParts int64 `mapstructure:"max_parts" yaml:"max_parts"`

	// MaxPartSize is the largest a part may grow to; exceeding it fails
	// planning with FileTooLarge.
	MaxPartSize int64 `mapstructure:"max_part_size" yaml:"max_part_size"`

	// SignedURLTTL is the validity window of minted pre-signed URLs.
	SignedURLTTL int64 `mapstructure:"signed_url_ttl_seconds" yaml:"signed_url_ttl_seconds"`

	// DownloadGraceMS is the delay, in milliseconds, before deleting a
	// record/blob once its download limit is reached.
	DownloadGraceMS int64 `mapstructure:"download_grace_ms" yaml:"download_grace_ms"`

	// PublicBaseURL is prefixed to the id and owner token when building
	// the share URL returned by Complete.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`

	// URLMintBatchSize is the batch size used when minting many part
	// URLs in parallel.
	URLMintBatchSize int `mapstructure:"url_mint_batch_size" yaml:"url_mint_batch_size"`
}

// DefaultConfig returns a Config with sane production defaults.
func DefaultConfig() *Config {
	const (
		mib = 1 << 20
		day = 86400
	)
	return &Config{
		MaxFileSize:          5 << 30, // 5 GiB
		MaxExpireSeconds:     7 * day,
		DefaultExpireSeconds: 1 * day,
		MaxDownloads:         1000,
		DefaultDownloads:     1,
		MultipartThreshold:   100 * mib,
		DefaultPartSize:      10 * mib,
		MaxParts:             10000,
		MaxPartSize:          5 << 30, // 5 GiB, object-store ceiling
		SignedURLTTL:         3600,
		DownloadGraceMS:      5 * 60 * 1000,
		URLMintBatchSize:     100,
	}
}

// Validate checks that c's fields are internally consistent.
func (c *Config) Validate() error {
	switch {
	case c.MaxFileSize <= 0:
		return fmt.Errorf("transfer: max_file_size must be positive")
	case c.MaxExpireSeconds <= 0:
		return fmt.Errorf("transfer: max_expire_seconds must be positive")
	case c.DefaultExpireSeconds <= 0 || c.DefaultExpireSeconds > c.MaxExpireSeconds:
		return fmt.Errorf("transfer: default_expire_seconds must be in (0, max_expire_seconds]")
	case c.MaxDownloads <= 0:
		return fmt.Errorf("transfer: max_downloads must be positive")
	case c.DefaultDownloads <= 0 || c.DefaultDownloads > c.MaxDownloads:
		return fmt.Errorf("transfer: default_downloads must be in (0, max_downloads]")
	case c.MultipartThreshold <= 0:
		return fmt.Errorf("transfer: multipart_threshold must be positive")
	case c.DefaultPartSize <= 0:
		return fmt.Errorf("transfer: default_part_size must be positive")
	case c.MaxParts <= 0:
		return fmt.Errorf("transfer: max_parts must be positive")
	case c.MaxPartSize <= 0:
		return fmt.Errorf("transfer: max_part_size must be positive")
	case c.SignedURLTTL <= 0:
		return fmt.Errorf("transfer: signed_url_ttl_seconds must be positive")
	case c.DownloadGraceMS < 0:
		return fmt.Errorf("transfer: download_grace_ms must not be negative")
	case c.URLMintBatchSize <= 0:
		return fmt.Errorf("transfer: url_mint_batch_size must be positive")
	}
	return nil
}
