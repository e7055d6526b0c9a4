package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives closed handoff requests with their chat to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveRequest writes the closed request and its scrubbed chat.
func (s *Store) ArchiveRequest(ctx context.Context, req handoff.Request, msgs []handoff.Message) error {
	if !s.Enabled() {
		return nil
	}
	return s.ArchiveRecord(ctx, NewRecord(req, msgs, s.now().UTC()))
}

// NewRecord builds the archived form of a request. Message text is scrubbed.
func NewRecord(req handoff.Request, msgs []handoff.Message, archivedAt time.Time) *RequestRecord {
	record := &RequestRecord{
		Version:        RecordVersion,
		RequestID:      req.ID,
		ConversationID: req.ConversationID,
		UserStatus:     req.UserStatus,
		Channel:        req.Channel,
		RiskScore:      req.RiskScore,
		Priority:       req.Priority(),
		AssignedTo:     req.Assignee(),
		OpenedAt:       req.CreatedAt,
		ArchivedAt:     archivedAt,
		MessageCount:   len(msgs),
		Summary:        req.Summary,
		Messages:       make([]Message, 0, len(msgs)),
	}
	if req.CrisisType != nil {
		record.CrisisType = *req.CrisisType
	}
	if !req.CreatedAt.IsZero() && archivedAt.After(req.CreatedAt) {
		record.DurationSeconds = int(archivedAt.Sub(req.CreatedAt).Seconds())
	}
	for _, m := range msgs {
		record.Messages = append(record.Messages, Message{
			ID:        m.ID,
			Sender:    string(m.Sender),
			Text:      m.Text,
			Timestamp: m.CreatedAt,
		})
	}
	ScrubMessages(record.Messages)
	return record
}

// ArchiveRecord writes a RequestRecord as JSON to S3 and appends to the manifest.
func (s *Store) ArchiveRecord(ctx context.Context, record *RequestRecord) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	now := record.ArchivedAt
	if now.IsZero() {
		now = s.now().UTC()
	}

	s3Key := fmt.Sprintf("handoff/v1/by-date/%d/%02d/%02d/request-%d.json",
		now.Year(), now.Month(), now.Day(), record.RequestID)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived handoff request to S3",
		"request_id", record.RequestID,
		"s3_key", s3Key,
		"message_count", record.MessageCount,
	)

	entry := ManifestEntry{
		RequestID:      record.RequestID,
		ConversationID: record.ConversationID,
		S3Key:          s3Key,
		CrisisType:     record.CrisisType,
		Priority:       record.Priority,
		AssignedTo:     record.AssignedTo,
		ArchivedAt:     now.Format(time.RFC3339),
		MessageCount:   record.MessageCount,
	}
	if err := s.AppendManifest(ctx, now, entry); err != nil {
		// The record itself is already stored.
		s.logger.Warn("failed to append manifest", "error", err, "request_id", record.RequestID)
	}
	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	manifestKey := fmt.Sprintf("handoff/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

var _ handoff.Archiver = (*Store)(nil)
