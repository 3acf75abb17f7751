package attachments

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
)

const (
	maxRemoteResolveBytes = int64(20 * 1024 * 1024)
	remoteResolveTimeout  = 30 * time.Second
)

// RemoteResolver fetches a remote attachment's bytes for engines that
// cannot accept a bare URL (spec §4.1's "remote URLs are passed through;
// files may be uploaded or inlined depending on the engine's capability").
// Adapted from the teacher's Feishu-specific resolver into a generic HTTP
// fetch over resty, since BasiliskLLM's remote attachments are plain URLs
// rather than a chat platform's message-resource API.
type RemoteResolver struct {
	client *resty.Client
}

// NewRemoteResolver builds a RemoteResolver with sane request timeouts.
func NewRemoteResolver() *RemoteResolver {
	client := resty.New().SetTimeout(remoteResolveTimeout)
	return &RemoteResolver{client: client}
}

// Resolve downloads url and returns its (mediaType, bytes), matching the
// lazy resolver shape Resolve(ctx, ref) -> (mediaType, data, err) the
// teacher uses for its Feishu file references.
func (r *RemoteResolver) Resolve(ctx context.Context, url string) (string, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	downloadCtx, cancel := context.WithTimeout(ctx, remoteResolveTimeout)
	defer cancel()

	resp, err := r.client.R().
		SetContext(downloadCtx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return "", nil, errs.New(errs.KindTransport, fmt.Errorf("fetching %q: %w", url, err)).WithURL(url)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return "", nil, errs.Newf(errs.KindTransport, "fetching %q: HTTP %d", url, resp.StatusCode()).WithURL(url)
	}

	data, err := readAllWithLimit(body, maxRemoteResolveBytes)
	if err != nil {
		return "", nil, errs.New(errs.KindTransport, fmt.Errorf("reading %q: %w", url, err)).WithURL(url)
	}

	mediaType := resp.Header().Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = sniffMediaType(headOf(data), "")
	}

	logger.DebugCF("attachments", "remote attachment resolved", map[string]any{
		"url": url, "media_type": mediaType, "size_bytes": len(data),
	})
	return mediaType, data, nil
}

func headOf(data []byte) []byte {
	if len(data) > maxSniffBytes {
		return data[:maxSniffBytes]
	}
	return data
}

func readAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(reader, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("remote attachment too large to resolve (>%d bytes)", maxBytes)
	}
	return data, nil
}
