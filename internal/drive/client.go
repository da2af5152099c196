package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/rapture-inbox/internal/auth"
	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
)

// maxAuthAttempts bounds the refresh-and-replay loop: the original call plus one replay.
const maxAuthAttempts = 2

// Options configures a Client.
type Options struct {
	Credentials Credentials

	// HTTPClient supplies the base transport and timeout. Bearer tokens are
	// added on top of its transport.
	HTTPClient *http.Client

	// Endpoint overrides the Drive API base URL, e.g. for tests.
	Endpoint string

	ParentFolder  string
	MailboxFolder string
	MimeType      string

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Client wraps the Google Drive API service for the mailbox folder.
type Client struct {
	service *drive.Service
	creds   Credentials

	parentFolder  string
	mailboxFolder string
	mimeType      string

	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewClient creates a Drive client that authenticates every request with creds.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Credentials == nil {
		return nil, fmt.Errorf("credentials are required")
	}

	base := http.DefaultTransport
	var timeout time.Duration
	if opts.HTTPClient != nil {
		if opts.HTTPClient.Transport != nil {
			base = opts.HTTPClient.Transport
		}
		timeout = opts.HTTPClient.Timeout
	}

	httpClient := &http.Client{
		Transport: &bearerTransport{creds: opts.Credentials, base: base},
		Timeout:   timeout,
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		service:       service,
		creds:         opts.Credentials,
		parentFolder:  valueOr(opts.ParentFolder, "Rapture"),
		mailboxFolder: valueOr(opts.MailboxFolder, "Obsidian"),
		mimeType:      valueOr(opts.MimeType, DefaultMimeType),
		metrics:       opts.Metrics,
		logger:        logging.WithComponent(logger, "drive"),
	}, nil
}

// LocateMailboxFolder finds the mailbox folder inside its parent folder.
// It returns "" with a nil error when either folder is missing and also
// when the lookup fails for a transient reason. Only credential failures
// are returned as errors.
func (c *Client) LocateMailboxFolder(ctx context.Context) (string, error) {
	var folderID string

	err := c.observe(ctx, instrumentation.OperationLocate, nil, func(ctx context.Context) error {
		parentID, err := c.findFolder(ctx, fmt.Sprintf(
			"name = '%s' and mimeType = '%s' and trashed = false",
			escapeQuery(c.parentFolder), FolderMimeType))
		if err != nil || parentID == "" {
			return err
		}

		folderID, err = c.findFolder(ctx, fmt.Sprintf(
			"name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			escapeQuery(c.mailboxFolder), escapeQuery(parentID), FolderMimeType))
		return err
	})
	if err != nil {
		if errors.Is(err, auth.ErrRefreshFailed) || errors.Is(err, ErrUnauthorized) {
			return "", err
		}
		c.logger.WarnContext(ctx, "Mailbox folder lookup failed, treating as absent",
			logging.Folder(c.parentFolder+"/"+c.mailboxFolder), logging.Err(err))
		return "", nil
	}

	if folderID == "" {
		c.logger.DebugContext(ctx, "Mailbox folder not found",
			logging.Folder(c.parentFolder+"/"+c.mailboxFolder))
	}
	return folderID, nil
}

func (c *Client) findFolder(ctx context.Context, query string) (string, error) {
	var id string
	err := c.withAuthRetry(ctx, func(ctx context.Context) error {
		list, err := c.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("files(id,name)").
			Do()
		if err != nil {
			return err
		}
		if len(list.Files) > 0 {
			id = list.Files[0].Id
		}
		return nil
	})
	return id, err
}

// ListFiles lists the mailbox files of the configured MIME type, newest first.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]FileInfo, error) {
	var files []FileInfo

	err := c.observe(ctx, instrumentation.OperationList, []attribute.KeyValue{
		attribute.String(instrumentation.SpanAttrFolderID, folderID),
	}, func(ctx context.Context) error {
		return c.withAuthRetry(ctx, func(ctx context.Context) error {
			files = files[:0]
			return c.service.Files.List().
				Q(fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false",
					escapeQuery(folderID), escapeQuery(c.mimeType))).
				Fields("nextPageToken, files(id,name,mimeType,modifiedTime)").
				OrderBy("modifiedTime desc").
				Pages(ctx, func(page *drive.FileList) error {
					for _, f := range page.Files {
						files = append(files, convertToFileInfo(f))
					}
					return nil
				})
		})
	})
	if err != nil {
		return nil, classify(err, ErrListFailed)
	}

	return files, nil
}

// DownloadContent downloads the full content of a file as text.
func (c *Client) DownloadContent(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("fileID is required")
	}

	var content string
	err := c.observe(ctx, instrumentation.OperationDownload, []attribute.KeyValue{
		attribute.String(instrumentation.SpanAttrFileID, fileID),
	}, func(ctx context.Context) error {
		return c.withAuthRetry(ctx, func(ctx context.Context) error {
			resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}
			content = string(data)
			return nil
		})
	})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return "", classify(err, ErrDownloadFailed)
	}

	return content, nil
}

// DeleteFile deletes a file. A file that is already gone counts as deleted.
// It never returns an error; failures are logged and reported as false.
func (c *Client) DeleteFile(ctx context.Context, fileID string) bool {
	err := c.observe(ctx, instrumentation.OperationDelete, []attribute.KeyValue{
		attribute.String(instrumentation.SpanAttrFileID, fileID),
	}, func(ctx context.Context) error {
		err := c.withAuthRetry(ctx, func(ctx context.Context) error {
			return c.service.Files.Delete(fileID).Context(ctx).Do()
		})
		if statusCode(err) == http.StatusNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to delete file", logging.FileID(fileID), logging.Err(err))
		return false
	}
	return true
}

// withAuthRetry runs call, and on a 401 refreshes the credentials and
// replays it. A 401 on the last attempt becomes ErrUnauthorized.
func (c *Client) withAuthRetry(ctx context.Context, call func(ctx context.Context) error) error {
	span := trace.SpanFromContext(ctx)
	for attempt := 1; ; attempt++ {
		span.SetAttributes(attribute.Int(instrumentation.SpanAttrAttempt, attempt))

		err := call(ctx)
		if statusCode(err) != http.StatusUnauthorized {
			return err
		}
		if attempt >= maxAuthAttempts {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}

		c.logger.DebugContext(ctx, "Drive returned 401, refreshing credentials",
			slog.Int("attempt", attempt))
		instrumentation.AddSpanEvent(span, "auth_replay", attribute.Int(instrumentation.SpanAttrAttempt, attempt))
		if err := c.creds.Refresh(ctx); err != nil {
			return fmt.Errorf("refreshing after 401: %w", err)
		}
	}
}

// observe wraps one logical Drive operation in a span and records its duration.
func (c *Client) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartDriveSpan(ctx, op, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		c.logger.DebugContext(ctx, "Drive operation failed", logging.Operation(op), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordDriveOperation(ctx, op, status, time.Since(start))

	return err
}

// bearerTransport adds an Authorization header from the credential source.
type bearerTransport struct {
	creds Credentials
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.creds.AccessToken(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(r)
}

// classify wraps API rejections in sentinel. Transport and credential
// failures pass through unchanged.
func classify(err error, sentinel error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && !errors.Is(err, ErrUnauthorized) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// escapeQuery escapes a value for use inside a single-quoted Drive query literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// convertToFileInfo converts a Drive API File to our FileInfo type
func convertToFileInfo(f *drive.File) FileInfo {
	return FileInfo{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: f.ModifiedTime,
	}
}
