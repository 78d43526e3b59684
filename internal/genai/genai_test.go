package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockImageService implements imageService for testing.
type mockImageService struct {
	resp   *openai.ImagesResponse
	err    error
	params openai.ImageGenerateParams
}

func (m *mockImageService) Generate(ctx context.Context, params openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error) {
	m.params = params
	return m.resp, m.err
}

func TestGenerateImage_Success(t *testing.T) {
	mockResp := &openai.ImagesResponse{
		Data: []openai.Image{{URL: "https://cdn.example.com/img.png"}},
	}
	mock := &mockImageService{resp: mockResp}
	client := &Client{images: mock, model: openai.ImageModelGPTImage1}

	url, err := client.GenerateImage(context.Background(), "a fox in a tuxedo", "1024x1536")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if url != "https://cdn.example.com/img.png" {
		t.Errorf("expected image url, got '%s'", url)
	}
	if string(mock.params.Size) != "1024x1536" {
		t.Errorf("expected requested size to pass through, got '%s'", mock.params.Size)
	}
}

func TestGenerateImage_DefaultSize(t *testing.T) {
	mock := &mockImageService{resp: &openai.ImagesResponse{
		Data: []openai.Image{{URL: "https://cdn.example.com/img.png"}},
	}}
	client := &Client{images: mock, model: openai.ImageModelGPTImage1}

	if _, err := client.GenerateImage(context.Background(), "prompt", ""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(mock.params.Size) != DefaultOutputSize {
		t.Errorf("expected default size %s, got '%s'", DefaultOutputSize, mock.params.Size)
	}
}

func TestGenerateImage_ServiceError(t *testing.T) {
	client := &Client{images: &mockImageService{err: errors.New("service failure")}}
	_, err := client.GenerateImage(context.Background(), "prompt", "")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateImage_NoData(t *testing.T) {
	client := &Client{images: &mockImageService{resp: &openai.ImagesResponse{}}}
	_, err := client.GenerateImage(context.Background(), "prompt", "")
	if !errors.Is(err, ErrNoImageReturned) {
		t.Errorf("expected no image returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}
