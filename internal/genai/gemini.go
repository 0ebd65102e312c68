package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	generativelanguage "cloud.google.com/go/ai/generativelanguage/apiv1beta"
	"cloud.google.com/go/ai/generativelanguage/apiv1beta/generativelanguagepb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// generativeAPI is the subset of *generativelanguage.GenerativeClient used here.
type generativeAPI interface {
	GenerateContent(ctx context.Context, req *generativelanguagepb.GenerateContentRequest, opts ...gax.CallOption) (*generativelanguagepb.GenerateContentResponse, error)
	StreamGenerateContent(ctx context.Context, req *generativelanguagepb.GenerateContentRequest, opts ...gax.CallOption) (generativelanguagepb.GenerativeService_StreamGenerateContentClient, error)
	Close() error
}

type GeminiOptions struct {
	// Endpoint is a gRPC host:port; empty uses the SDK default.
	Endpoint string
	APIKey   string
	Model    string
	Dialer   Dialer
}

// Gemini implements Client over the Generative Language gRPC API.
type Gemini struct {
	api   generativeAPI
	model string
}

func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	clientOptions := []option.ClientOption{
		option.WithAPIKey(opts.APIKey),
	}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	if dialer := opts.Dialer; dialer != nil {
		clientOptions = append(clientOptions, option.WithGRPCDialOption(
			grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
				return dialer(ctx, "tcp", addr)
			}),
		))
	}

	client, err := generativelanguage.NewGenerativeClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{api: client, model: opts.Model}, nil
}

func (g *Gemini) Close() error {
	return g.api.Close()
}

func modelName(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func textContent(role Role, text string) *generativelanguagepb.Content {
	return &generativelanguagepb.Content{
		Role: string(role),
		Parts: []*generativelanguagepb.Part{
			{Data: &generativelanguagepb.Part_Text{Text: text}},
		},
	}
}

func (g *Gemini) request(req Request) (*generativelanguagepb.GenerateContentRequest, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	model := req.Model
	if model == "" {
		model = g.model
	}

	contents := make([]*generativelanguagepb.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		contents = append(contents, textContent(turn.Role, turn.Text))
	}
	contents = append(contents, textContent(RoleUser, req.Prompt))

	pbReq := &generativelanguagepb.GenerateContentRequest{
		Model:    modelName(model),
		Contents: contents,
	}
	if strings.TrimSpace(req.System) != "" {
		pbReq.SystemInstruction = textContent("", req.System)
	}
	return pbReq, nil
}

func responseText(resp *generativelanguagepb.GenerateContentResponse) string {
	if len(resp.GetCandidates()) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.GetCandidates()[0].GetContent().GetParts() {
		b.WriteString(part.GetText())
	}
	return b.String()
}

func blocked(resp *generativelanguagepb.GenerateContentResponse) error {
	if len(resp.GetCandidates()) > 0 {
		return nil
	}
	reason := resp.GetPromptFeedback().GetBlockReason()
	if reason == generativelanguagepb.GenerateContentResponse_PromptFeedback_BLOCK_REASON_UNSPECIFIED {
		return nil
	}
	return &APIError{HTTPStatus: http.StatusOK, Status: "BLOCKED", Message: reason.String()}
}

func (g *Gemini) StreamText(ctx context.Context, req Request) (Stream, error) {
	pbReq, err := g.request(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stream, err := g.api.StreamGenerateContent(ctx, pbReq)
	if err != nil {
		cancel()
		return nil, apiError(err)
	}
	return &geminiStream{stream: stream, cancel: cancel}, nil
}

func (g *Gemini) GenerateText(ctx context.Context, req Request) (string, error) {
	pbReq, err := g.request(req)
	if err != nil {
		return "", err
	}
	resp, err := g.api.GenerateContent(ctx, pbReq)
	if err != nil {
		return "", apiError(err)
	}
	if err := blocked(resp); err != nil {
		return "", err
	}
	return responseText(resp), nil
}

type geminiStream struct {
	stream generativelanguagepb.GenerativeService_StreamGenerateContentClient
	cancel context.CancelFunc
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", apiError(err)
		}
		if err := blocked(resp); err != nil {
			return "", err
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	err := s.stream.CloseSend()
	s.cancel()
	return err
}

var grpcStatuses = map[codes.Code]struct {
	name string
	http int
}{
	codes.Unknown:            {"UNKNOWN", http.StatusInternalServerError},
	codes.InvalidArgument:    {"INVALID_ARGUMENT", http.StatusBadRequest},
	codes.DeadlineExceeded:   {"DEADLINE_EXCEEDED", http.StatusGatewayTimeout},
	codes.NotFound:           {"NOT_FOUND", http.StatusNotFound},
	codes.AlreadyExists:      {"ALREADY_EXISTS", http.StatusConflict},
	codes.PermissionDenied:   {"PERMISSION_DENIED", http.StatusForbidden},
	codes.ResourceExhausted:  {"RESOURCE_EXHAUSTED", http.StatusTooManyRequests},
	codes.FailedPrecondition: {"FAILED_PRECONDITION", http.StatusBadRequest},
	codes.Aborted:            {"ABORTED", http.StatusConflict},
	codes.OutOfRange:         {"OUT_OF_RANGE", http.StatusBadRequest},
	codes.Unimplemented:      {"UNIMPLEMENTED", http.StatusNotImplemented},
	codes.Internal:           {"INTERNAL", http.StatusInternalServerError},
	codes.Unavailable:        {"UNAVAILABLE", http.StatusServiceUnavailable},
	codes.DataLoss:           {"DATA_LOSS", http.StatusInternalServerError},
	codes.Unauthenticated:    {"UNAUTHENTICATED", http.StatusUnauthorized},
}

// apiError converts a gRPC status into an APIError. Context errors and
// failures without a status pass through wrapped.
func apiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("call gemini: %w", err)
	}
	switch s.Code() {
	case codes.Canceled:
		return fmt.Errorf("call gemini: %w", context.Canceled)
	case codes.OK:
		return fmt.Errorf("call gemini: %w", err)
	}
	known, found := grpcStatuses[s.Code()]
	if !found {
		known.name, known.http = strings.ToUpper(s.Code().String()), http.StatusInternalServerError
	}
	return &APIError{
		HTTPStatus: known.http,
		Code:       int(s.Code()),
		Message:    s.Message(),
		Status:     known.name,
	}
}
