package statuscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for the stamping service.
type Checker struct {
	redis      RedisPinger
	s3Bucket   string
	outputDir  string
	scratchDir string
}

// Options configures the Checker.
type Options struct {
	// Redis is nil when history is kept in memory.
	Redis      RedisPinger
	S3Bucket   string
	OutputDir  string
	ScratchDir string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	History Status `json:"history"`
	S3      Status `json:"s3"`
	Output  Status `json:"output"`
	Scratch Status `json:"scratch"`
}

// Ready reports whether everything the service needs to merge is available. S3 is
// optional and does not affect readiness.
func (s Summary) Ready() bool {
	return s.History.OK && s.Output.OK && s.Scratch.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:      opts.Redis,
		s3Bucket:   opts.S3Bucket,
		outputDir:  opts.OutputDir,
		scratchDir: opts.ScratchDir,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		History: c.checkRedis(ctx),
		S3:      c.checkS3(ctx),
		Output:  checkWritable(c.outputDir),
		Scratch: checkWritable(c.scratchDir),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "In-memory"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	cli := s3.NewFromConfig(cfg)
	_, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func checkWritable(dir string) Status {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	probe := filepath.Join(dir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	os.Remove(probe)
	return Status{OK: true, Message: "Writable"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
