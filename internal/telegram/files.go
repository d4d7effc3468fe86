package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type fileClient interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
}

// FileFetcher downloads files known to one bot. It implements
// broadcast.MediaFetcher and spy.Downloader.
type FileFetcher struct {
	client     fileClient
	httpClient *http.Client
}

// NewFileFetcher creates a FileFetcher for client.
func NewFileFetcher(client fileClient, httpClient *http.Client) *FileFetcher {
	return &FileFetcher{client: client, httpClient: httpClient}
}

// Download writes the content of fileID to w.
func (f *FileFetcher) Download(ctx context.Context, fileID string, w io.Writer) error {
	file, err := f.client.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.client.FileDownloadLink(file), nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file: unexpected status %s", resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}
