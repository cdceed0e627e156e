package service

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/chatorder/internal/extraction"
	"github.com/smallbiznis/chatorder/internal/money"
	"github.com/smallbiznis/chatorder/internal/order/domain"
	"go.uber.org/zap"
)

// Extractor is the slice of the LLM client the service needs.
type Extractor interface {
	ExtractSingle(ctx context.Context, message string) (*extraction.SingleResult, error)
	ExtractChat(ctx context.Context, messages []extraction.ChatMessage) (*extraction.ChatResult, error)
}

// Service turns raw conversation text into persisted orders.
type Service struct {
	repo domain.Repository
	llm  Extractor
	log  *zap.Logger
}

func New(repo domain.Repository, llm Extractor, log *zap.Logger) *Service {
	return &Service{repo: repo, llm: llm, log: log.Named("order.service")}
}

// ExtractSingleMessage runs single-message extraction and stores the result.
// The raw model payload is persisted even though the items are normalized,
// so disputes can always be traced back to what the model said.
func (s *Service) ExtractSingleMessage(ctx context.Context, orgID, message string) (*domain.Order, error) {
	result, err := s.llm.ExtractSingle(ctx, message)
	if err != nil {
		return nil, err
	}

	rawAI, _ := json.Marshal(result)
	rawMsg, _ := json.Marshal(map[string]string{"message": message})

	score := result.Confidence
	input := domain.CreateInput{
		ExtractionType:  domain.ExtractionSingleMessage,
		CustomerName:    result.CustomerName,
		DeliveryAddress: result.DeliveryAddress,
		DeliveryDate:    result.DeliveryDate,
		Items:           mapItems(result.Items),
		ConfidenceScore: &score,
		RawAIResponse:   rawAI,
		RawMessages:     rawMsg,
	}
	return s.repo.Create(ctx, orgID, input)
}

// ExtractChatLog runs transcript extraction and stores the result.
func (s *Service) ExtractChatLog(ctx context.Context, orgID string, messages []extraction.ChatMessage) (*domain.Order, error) {
	result, err := s.llm.ExtractChat(ctx, messages)
	if err != nil {
		return nil, err
	}

	rawAI, _ := json.Marshal(result)
	rawMsg, _ := json.Marshal(messages)

	input := domain.CreateInput{
		ExtractionType:  domain.ExtractionChatLog,
		CustomerName:    result.CustomerName,
		DeliveryAddress: result.DeliveryAddress,
		DeliveryDate:    result.DeliveryDate,
		Items:           mapItems(result.Items),
		Confidence:      domain.Confidence(result.Confidence),
		RawAIResponse:   rawAI,
		RawMessages:     rawMsg,
	}
	return s.repo.Create(ctx, orgID, input)
}

func mapItems(items []extraction.Item) []domain.ItemInput {
	out := make([]domain.ItemInput, 0, len(items))
	for _, item := range items {
		in := domain.ItemInput{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
		}
		if item.Price != nil {
			price := money.FromRupees(*item.Price)
			in.PricePerUnit = &price
		}
		out = append(out, in)
	}
	return out
}
