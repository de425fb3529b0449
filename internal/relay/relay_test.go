package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"foodrelay/internal/domain"
	"foodrelay/internal/format"
	"foodrelay/internal/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type stubFetcher struct {
	ref   domain.ImageReference
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (domain.ImageReference, error) {
	f.calls++
	return f.ref, f.err
}

func apple() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Foods:  []domain.FoodItem{{Name: "Apple", Portion: "1 medium", Calories: "95", Protein: "0.5", Carbs: "25", Fat: "0.3"}},
		Totals: domain.Totals{Calories: "95", Protein: "0.5", Carbs: "25", Fat: "0.3"},
	}
}

func TestAnalyze_URLTransfer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	r := New(Config{Analyzer: analyzer, Transfer: domain.TransferURL, Cards: true, Logger: testLogger()})

	analyzer.EXPECT().
		Analyze(gomock.Any(), domain.AnalysisRequest{ImageURL: "https://x/food.jpg", UserName: "Ann", UserEmail: domain.DefaultRequesterEmail}).
		Return(apple(), nil).
		Times(1)

	reply, err := r.Analyze(context.Background(), domain.RemoteURL("https://x/food.jpg"), domain.Requester{Name: "Ann"})
	req.NoError(err)
	req.Contains(reply.Text, "1. Apple")
	req.NotNil(reply.Card)
}

func TestAnalyze_URLTransferRejectsInline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	r := New(Config{Analyzer: analyzer, Transfer: domain.TransferURL, Logger: testLogger()})

	reply, err := r.Analyze(context.Background(), domain.InlineBytes([]byte{0xff, 0xd8}, "image/jpeg"), domain.Requester{})
	req.ErrorIs(err, domain.ErrTransferUnsupported)
	req.Equal(format.TransferUnsupported, reply.Text)
}

func TestAnalyze_Base64TransferInline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	r := New(Config{Analyzer: analyzer, Transfer: domain.TransferBase64, Logger: testLogger()})

	data := []byte("jpeg-bytes")
	analyzer.EXPECT().
		Analyze(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ar domain.AnalysisRequest) (*domain.AnalysisResult, error) {
			req.Empty(ar.ImageURL)
			req.Equal(base64.StdEncoding.EncodeToString(data), ar.ImageBase64)
			return apple(), nil
		})

	reply, err := r.Analyze(context.Background(), domain.InlineBytes(data, "image/jpeg"), domain.Requester{})
	req.NoError(err)
	req.Nil(reply.Card)
}

func TestAnalyze_Base64TransferFetchesURL(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	fetcher := &stubFetcher{ref: domain.InlineBytes([]byte("png"), "image/png")}
	r := New(Config{Analyzer: analyzer, Fetcher: fetcher, Transfer: domain.TransferBase64, Logger: testLogger()})

	analyzer.EXPECT().
		Analyze(gomock.Any(), domain.AnalysisRequest{
			ImageBase64: base64.StdEncoding.EncodeToString([]byte("png")),
			UserName:    domain.DefaultRequesterName,
			UserEmail:   domain.DefaultRequesterEmail,
		}).
		Return(apple(), nil)

	_, err := r.Analyze(context.Background(), domain.RemoteURL("https://x/food.png"), domain.Requester{})
	req.NoError(err)
	req.Equal(1, fetcher.calls)
}

func TestAnalyze_FetchFailureSkipsAnalyzer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl) // no calls expected
	fetcher := &stubFetcher{err: domain.ErrNotAnImage}
	r := New(Config{Analyzer: analyzer, Fetcher: fetcher, Transfer: domain.TransferBase64, Logger: testLogger()})

	reply, err := r.Analyze(context.Background(), domain.RemoteURL("https://x/page.html"), domain.Requester{})
	req.ErrorIs(err, domain.ErrNotAnImage)
	req.Equal(format.NotAnImage, reply.Text)
}

func TestAnalyze_ServiceFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	r := New(Config{Analyzer: analyzer, Logger: testLogger()})

	analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
		Return(nil, &domain.AnalysisError{Kind: domain.ErrAnalysisUnavailable, Err: errors.New("timeout")}).
		Times(1)

	reply, err := r.Analyze(context.Background(), domain.RemoteURL("https://x/food.jpg"), domain.Requester{})
	req.ErrorIs(err, domain.ErrAnalysisUnavailable)
	req.Contains(reply.Text, "timeout")
	req.Contains(reply.Text, "waking up")
}

func TestAnalyze_IgnoresCallerCancellation(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	r := New(Config{Analyzer: analyzer, Logger: testLogger()})

	analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.AnalysisRequest) (*domain.AnalysisResult, error) {
			req.NoError(ctx.Err())
			return apple(), nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Analyze(ctx, domain.RemoteURL("https://x/food.jpg"), domain.Requester{})
	req.NoError(err)
}

// slowFetcher takes delay to answer unless ctx ends first.
type slowFetcher struct {
	delay time.Duration
}

func (f slowFetcher) Fetch(ctx context.Context, url string) (domain.ImageReference, error) {
	select {
	case <-time.After(f.delay):
		return domain.InlineBytes([]byte("jpeg-bytes"), "image/jpeg"), nil
	case <-ctx.Done():
		return domain.ImageReference{}, fmt.Errorf("%w: %v", domain.ErrImageDownload, ctx.Err())
	}
}

func TestAnalyze_DownloadAndAnalysisShareOneDeadline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	const ceiling = 200 * time.Millisecond
	r := New(Config{
		Analyzer: analyzer,
		Fetcher:  slowFetcher{delay: 150 * time.Millisecond},
		Transfer: domain.TransferBase64,
		Timeout:  ceiling,
		Logger:   testLogger(),
	})

	analyzer.EXPECT().
		Analyze(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.AnalysisRequest) (*domain.AnalysisResult, error) {
			// Never answers on its own; only the shared deadline ends it.
			<-ctx.Done()
			return nil, &domain.AnalysisError{Kind: domain.ErrAnalysisUnavailable, Err: ctx.Err()}
		}).
		Times(1)

	start := time.Now()
	reply, err := r.Analyze(context.Background(), domain.RemoteURL("https://x/a.jpg"), domain.Requester{})
	elapsed := time.Since(start)

	req.ErrorIs(err, domain.ErrAnalysisUnavailable)
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Contains(reply.Text, "waking up")
	req.Less(elapsed, ceiling+150*time.Millisecond)
}

func TestAnalyze_DeadlineDuringDownload(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	analyzer := mocks.NewMockAnalyzer(ctrl)
	r := New(Config{
		Analyzer: analyzer,
		Fetcher:  slowFetcher{delay: time.Second},
		Transfer: domain.TransferBase64,
		Timeout:  50 * time.Millisecond,
		Logger:   testLogger(),
	})

	reply, err := r.Analyze(context.Background(), domain.RemoteURL("https://x/a.jpg"), domain.Requester{})
	req.ErrorIs(err, domain.ErrImageDownload)
	req.Equal(format.DownloadFailed, reply.Text)
}
