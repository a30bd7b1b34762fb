package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chamale-rac/xmpp/internal/store"
	"github.com/chamale-rac/xmpp/internal/upload"
	"github.com/chamale-rac/xmpp/internal/wire"
)

const uploadTimeout = 2 * time.Minute

// RequestUpload asks the upload service for a slot. The request id doubles
// as the upload id; the grant resumes the pending record it matches and a
// grant matching nothing is dropped. There are no automatic retries: a
// failed transfer leaves the pending record for the caller to abandon.
func (s *Session) RequestUpload(filename string, data []byte, destination string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload payload")
	}

	s.mu.RLock()
	uploadDomain := s.uploadDomain
	s.mu.RUnlock()
	if uploadDomain == "" {
		return "", fmt.Errorf("no upload service available")
	}

	id := newID()
	contentType := upload.ContentType(filename)
	s.store.Uploads.Add(store.PendingUpload{
		ID:          id,
		Filename:    filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		Data:        data,
		Destination: destination,
		Conn:        s.connGeneration(),
	})

	req := wire.NewNS(wire.NSUpload, "request",
		"filename", filename,
		"size", fmt.Sprintf("%d", len(data)),
		"content-type", contentType,
	)
	iq := wire.New("iq", "type", "get", "id", id, "to", uploadDomain).Append(req)
	if err := s.send(iq); err != nil {
		s.store.Uploads.Remove(id)
		return "", err
	}
	return id, nil
}

// AbandonUpload discards a pending upload that will never be granted or
// whose transfer failed.
func (s *Session) AbandonUpload(id string) {
	s.store.Uploads.Remove(id)
}

// handleUploadGrant resumes the pending upload the slot was granted for.
// The HTTP transfer runs off the stanza path; on success the share link is
// sent to the destination and the pending record is retired.
func (s *Session) handleUploadGrant(ev wire.UploadGrant) {
	pending, ok := s.store.Uploads.Get(ev.ID)
	if !ok {
		s.log.Debug("dropping grant for unknown upload", zap.String("id", ev.ID))
		return
	}
	if pending.Conn != s.connGeneration() {
		// Replayed grant for a slot requested on an earlier connection.
		// The record stays so the caller can re-request or abandon.
		s.log.Debug("dropping grant from a previous connection", zap.String("id", ev.ID))
		return
	}
	if ev.PutURL == "" || ev.GetURL == "" {
		s.log.Warn("upload grant missing slot urls", zap.String("id", ev.ID))
		return
	}

	slot := upload.Slot{PutURL: ev.PutURL, GetURL: ev.GetURL, Headers: ev.Headers}
	go s.transfer(pending, slot)
}

func (s *Session) transfer(pending store.PendingUpload, slot upload.Slot) {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	if err := s.http.Put(ctx, slot, pending.Filename, pending.Data); err != nil {
		s.log.Warn("upload transfer failed",
			zap.String("id", pending.ID),
			zap.String("filename", pending.Filename),
			zap.Error(err))
		s.notifyToast(fmt.Sprintf("upload of %s failed", pending.Filename))
		return
	}

	var err error
	if s.isGroupJID(pending.Destination) {
		err = s.SendGroupMessage(pending.Destination, slot.GetURL)
	} else {
		err = s.SendMessage(pending.Destination, slot.GetURL)
	}
	if err != nil {
		s.log.Warn("failed to share upload link",
			zap.String("id", pending.ID),
			zap.String("to", pending.Destination),
			zap.Error(err))
		return
	}
	s.store.Uploads.Remove(pending.ID)
	s.log.Info("upload shared",
		zap.String("filename", pending.Filename),
		zap.String("to", pending.Destination))
}
