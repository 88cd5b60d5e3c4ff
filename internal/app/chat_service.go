package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/sanitize"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/repository"
)

const MaxMessageLength = 2000

type ChatService struct {
	sessionRepo *repository.SessionRepository
	messageRepo *repository.MessageRepository
	history     conversationHistory
	retriever   *rag.Retriever
	answerer    *rag.Answerer
	topK        int
	windowSize  int
	now         func() time.Time
}

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	historyCache HistoryCache,
	retriever *rag.Retriever,
	answerer *rag.Answerer,
	topK int,
	windowSize int,
) *ChatService {
	return &ChatService{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		history:     conversationHistory{repo: messageRepo, cache: historyCache},
		retriever:   retriever,
		answerer:    answerer,
		topK:        topK,
		windowSize:  windowSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type QueryInput struct {
	UserID    string
	SessionID string
	Message   string
}

type QueryResult struct {
	Answer       string       `json:"answer"`
	Sources      []rag.Source `json:"sources"`
	ContextFound bool         `json:"contextFound"`
}

// Query answers a question from the session's documents. The user turn is
// stored before the generator runs and the assistant turn after it, so
// replay order holds even when generation is slow. Generator failures
// produce a fallback answer, not an error.
func (s *ChatService) Query(ctx context.Context, in QueryInput) (*QueryResult, error) {
	question := sanitize.Text(in.Message)
	if question == "" {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(question) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	if in.UserID == "" || in.SessionID == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessionRepo.GetByIDAndUserID(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	fragments, err := s.retriever.Retrieve(ctx, question, in.UserID, in.SessionID, s.topK)
	if err != nil {
		return nil, err
	}
	block := rag.FormatContext(fragments)

	history, err := s.history.load(ctx, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}
	window := rag.BuildConversationWindow(history, s.windowSize)

	if err := s.appendMessage(ctx, in.UserID, in.SessionID, model.RoleUser, question); err != nil {
		return nil, err
	}

	answer := s.answerer.Answer(ctx, window, rag.BuildUserTurn(block, question))

	if err := s.appendMessage(context.WithoutCancel(ctx), in.UserID, in.SessionID, model.RoleAssistant, answer); err != nil {
		return nil, err
	}

	return &QueryResult{
		Answer:       answer,
		Sources:      rag.ExtractSources(fragments),
		ContextFound: block.Found,
	}, nil
}

func (s *ChatService) appendMessage(ctx context.Context, userID, sessionID, role, content string) error {
	msg := &model.Message{
		ID:        ulid.Make().String(),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   strings.TrimSpace(content),
		CreatedAt: s.now(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return err
	}
	s.history.invalidate(ctx, userID, sessionID)
	return nil
}
