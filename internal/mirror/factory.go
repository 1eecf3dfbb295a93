package mirror

import (
	"fmt"

	"pinarch/internal/config"
)

// NewMirrorFromConfig creates a Mirror implementation based on the mirror config type.
func NewMirrorFromConfig(cfg config.MirrorConfig) (Mirror, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryMirror(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 mirror requires s3_bucket to be set")
		}
		return NewS3Mirror(cfg)
	case "filesystem":
		if cfg.FSMirrorRoot == "" {
			return nil, fmt.Errorf("filesystem mirror requires fs_mirror_root to be set")
		}
		return NewFileSystemMirror(cfg.Name, cfg.FSMirrorRoot)
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
