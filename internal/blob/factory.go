package blob

import (
	"context"
	"fmt"
	"strings"

	appcfg "github.com/fdg312/fitdiary/internal/config"
)

type Logger interface {
	Printf(format string, v ...any)
}

// NewBlobStore builds the catalog blob store for mode local|s3|auto.
// local (and auto without S3 config) returns a nil store: the caller reads
// the seed from disk instead. s3 with incomplete config is an error.
func NewBlobStore(ctx context.Context, cfg appcfg.BlobConfig, logger Logger) (Store, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = appcfg.BlobModeLocal
	}

	switch mode {
	case appcfg.BlobModeLocal:
		logf(logger, "INFO blob: mode=local (forced)")
		return nil, appcfg.BlobModeLocal, nil

	case appcfg.BlobModeAuto:
		if !cfg.S3.IsConfigured() {
			level, code, msg := cfg.S3.Diagnostics()
			logf(logger, "%s blob.s3: code=%s %s", level, code, msg)
			logf(logger, "INFO blob: mode=local (auto, S3 not configured)")
			return nil, appcfg.BlobModeLocal, nil
		}
		store, err := newS3(ctx, cfg.S3, logger)
		if err != nil {
			logf(logger, "WARN blob.s3: init_failed=%q, fallback=local", err.Error())
			return nil, appcfg.BlobModeLocal, nil
		}
		logf(logger, "INFO blob: mode=s3 (auto, configured)")
		return store, appcfg.BlobModeS3, nil

	case appcfg.BlobModeS3:
		if missing := cfg.S3.MissingRequired(); len(missing) > 0 {
			logf(logger, "FATAL blob.s3: code=s3_config_incomplete missing=%v", missing)
			return nil, "", fmt.Errorf("BLOB_MODE=s3 requested but missing required config: %s", strings.Join(missing, ", "))
		}
		store, err := newS3(ctx, cfg.S3, logger)
		if err != nil {
			logf(logger, "FATAL blob.s3: init_failed=%v", err)
			return nil, "", fmt.Errorf("BLOB_MODE=s3 init failed: %w", err)
		}
		logf(logger, "INFO blob: mode=s3 (forced)")
		return store, appcfg.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}

func newS3(ctx context.Context, c appcfg.S3Config, logger Logger) (*S3Store, error) {
	logf(logger, "INFO blob.s3: code=s3_ready %s", c.DiagnosticsSummary())
	return NewS3Store(ctx, c.Endpoint, c.Region, c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

func logf(logger Logger, format string, v ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, v...)
}
