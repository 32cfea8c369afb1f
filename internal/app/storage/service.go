/*
Package storage keeps an audit trail of chat messages removed by moderators in S3-compatible
object storage.
*/
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loungechat/internal/app/message"
	"loungechat/internal/pkg/randx"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// StorageService defines the public interface for the object storage service.
type StorageService interface {
	// Put stores body under key.
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// NewStorageService is the factory function for StorageService.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(ctx, cfg)
}

// AuditRecord is one archived moderation removal.
type AuditRecord struct {
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	RemovedAt time.Time         `json:"removedAt"`
	Messages  []message.Message `json:"messages"`
}

// Archiver writes one JSON object per removal.
type Archiver struct {
	store  StorageService
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver writing below prefix.
func NewArchiver(store StorageService, prefix string) *Archiver {
	return &Archiver{store: store, prefix: prefix, now: time.Now}
}

// ObjectKey returns the key of a record: {prefix}/{yyyy}/{mm}/{dd}/{unixnano}-{action}-{id}.json
func (a *Archiver) ObjectKey(action string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%d-%s-%s.json",
		a.prefix, at.Year(), at.Month(), at.Day(), at.UnixNano(), action, randx.MessageID())
}

// ArchiveRemoved stores the removed messages with who removed them and how.
func (a *Archiver) ArchiveRemoved(ctx context.Context, action, actor string, messages []message.Message) error {
	now := a.now().UTC()
	body, err := json.Marshal(AuditRecord{
		Action:    action,
		Actor:     actor,
		RemovedAt: now,
		Messages:  messages,
	})
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	return a.store.Put(ctx, a.ObjectKey(action, now), "application/json", body)
}
