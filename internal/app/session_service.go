package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/vectorindex"
)

const (
	defaultSessionName = "New Session"
	maxSessionName     = 256
)

type SessionService struct {
	sessionRepo  *repository.SessionRepository
	documentRepo *repository.DocumentRepository
	messageRepo  *repository.MessageRepository
	index        vectorindex.Index
	history      conversationHistory
	purger       PurgePublisher
}

func NewSessionService(
	sessionRepo *repository.SessionRepository,
	documentRepo *repository.DocumentRepository,
	messageRepo *repository.MessageRepository,
	index vectorindex.Index,
	historyCache HistoryCache,
	purger PurgePublisher,
) *SessionService {
	return &SessionService{
		sessionRepo:  sessionRepo,
		documentRepo: documentRepo,
		messageRepo:  messageRepo,
		index:        index,
		history:      conversationHistory{repo: messageRepo, cache: historyCache},
		purger:       purger,
	}
}

func cleanSessionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultSessionName, nil
	}
	if utf8.RuneCountInString(name) > maxSessionName {
		return "", ErrInvalidInput
	}
	return name, nil
}

func (s *SessionService) Create(ctx context.Context, userID, name string) (*model.Session, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	name, err := cleanSessionName(name)
	if err != nil {
		return nil, err
	}
	session := &model.Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Status: model.SessionActive,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, userID string) ([]model.Session, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(ctx, userID)
}

// Get returns ErrSessionNotFound for sessions that are missing, owned by
// another user or being deleted.
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) Rename(ctx context.Context, userID, sessionID, name string) (*model.Session, error) {
	name, err := cleanSessionName(name)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	ok, err := s.sessionRepo.Rename(ctx, sessionID, userID, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Get(ctx, userID, sessionID)
}

func (s *SessionService) ListDocuments(ctx context.Context, userID, sessionID string) ([]model.Document, error) {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.documentRepo.ListBySession(ctx, userID, sessionID)
}

func (s *SessionService) ListMessages(ctx context.Context, userID, sessionID string) ([]model.Message, error) {
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.history.load(ctx, userID, sessionID)
}

// DeleteResult reports what one cascade run removed. Counts cover only the
// current run, so a resumed cascade reports what was left over.
type DeleteResult struct {
	SessionID         string `json:"sessionId"`
	DocumentsDeleted  int64  `json:"documentsDeleted"`
	EmbeddingsDeleted int64  `json:"embeddingsDeleted"`
	MessagesDeleted   int64  `json:"messagesDeleted"`
	Complete          bool   `json:"complete"`
}

// Delete cascades a session. The session is first marked DELETING, which
// hides it from every read. Documents, embeddings and messages are then
// removed independently; the session record goes last and only if all of
// them succeeded. On partial failure the counts are returned together with
// ErrCascadeIncomplete and calling Delete again resumes the cascade.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) (*DeleteResult, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessionRepo.GetForDelete(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == model.SessionActive {
		if err := s.sessionRepo.MarkDeleting(ctx, sessionID, userID); err != nil {
			return nil, err
		}
	}
	return s.cascade(ctx, userID, sessionID)
}

func (s *SessionService) cascade(ctx context.Context, userID, sessionID string) (*DeleteResult, error) {
	result := &DeleteResult{SessionID: sessionID}
	var errs []error

	n, err := s.documentRepo.DeleteBySession(ctx, userID, sessionID)
	result.DocumentsDeleted = n
	if err != nil {
		errs = append(errs, err)
	}

	n, err = s.index.Delete(ctx, vectorindex.Filter{UserID: userID, SessionID: sessionID})
	result.EmbeddingsDeleted = n
	if err != nil {
		errs = append(errs, err)
	}

	n, err = s.messageRepo.DeleteBySession(ctx, userID, sessionID)
	result.MessagesDeleted = n
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		slog.Error("session cascade incomplete",
			"user_id", userID, "session_id", sessionID,
			"documents", result.DocumentsDeleted, "embeddings", result.EmbeddingsDeleted,
			"messages", result.MessagesDeleted, "err", joined)
		return result, fmt.Errorf("%w: %w", ErrCascadeIncomplete, joined)
	}

	if _, err := s.sessionRepo.DeleteByIDAndUserID(ctx, sessionID, userID); err != nil {
		slog.Error("remove session record failed", "user_id", userID, "session_id", sessionID, "err", err)
		return result, fmt.Errorf("%w: %w", ErrCascadeIncomplete, err)
	}
	result.Complete = true

	s.history.drop(ctx, userID, sessionID)
	if s.purger != nil {
		if err := s.purger.PublishPurge(ctx, userID, sessionID); err != nil {
			slog.Warn("publish storage purge failed", "user_id", userID, "session_id", sessionID, "err", err)
		}
	}
	slog.Info("session deleted", "user_id", userID, "session_id", sessionID,
		"documents", result.DocumentsDeleted, "embeddings", result.EmbeddingsDeleted, "messages", result.MessagesDeleted)
	return result, nil
}

// ResumePendingDeletes finishes cascades interrupted by a crash. It returns
// how many sessions were fully removed.
func (s *SessionService) ResumePendingDeletes(ctx context.Context) (int, error) {
	pending, err := s.sessionRepo.ListDeleting(ctx)
	if err != nil {
		return 0, err
	}
	done := 0
	var errs []error
	for _, session := range pending {
		if _, err := s.cascade(ctx, session.UserID, session.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}
