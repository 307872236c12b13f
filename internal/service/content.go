package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postqueue/internal/models"
)

const maxMediaBytes = 100 << 20

var allowedTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
}

// SniffContent detects the type of b and rejects anything the platform
// cannot publish.
func SniffContent(b []byte) (types.Type, error) {
	kind, err := filetype.Match(b)
	if err != nil || kind == types.Unknown {
		return types.Unknown, models.NewValidationError("media", "unsupported file type")
	}
	if _, ok := allowedTypes[kind.Extension]; !ok {
		return types.Unknown, models.NewValidationError("media", fmt.Sprintf("file type %s is not allowed", kind.Extension))
	}
	return kind, nil
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "https://") || strings.HasPrefix(uri, "http://")
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// readSource loads the bytes behind a media source URI.
func readSource(ctx context.Context, client *http.Client, uri string) ([]byte, error) {
	if !isRemote(uri) {
		f, err := os.Open(localPath(uri))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, models.NewNotFoundError("media file", uri)
			}
			return nil, fmt.Errorf("open media file: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxMediaBytes))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, models.NewValidationError("source_uri", err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, models.NewTransientError(0, "download media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, externalStatusError(resp.StatusCode, "download media: "+resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
}

// externalStatusError classifies a failed HTTP status as an ExternalError.
func externalStatusError(status int, msg string) *models.ExternalError {
	if ClassifyHTTPStatus(status) == ErrorClassPermanent {
		return models.NewPermanentError(status, msg, nil)
	}
	return models.NewTransientError(status, msg, nil)
}
