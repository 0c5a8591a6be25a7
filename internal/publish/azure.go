package publish

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/dashpull/dashpull/internal/http"
)

// AzurePublisher uploads files to a blob container addressed by a SAS URL.
type AzurePublisher struct {
	client *container.Client
	prefix string
	retry  http.RetryConfig
}

// NewAzurePublisher creates a container client for containerURL, which must carry a SAS token.
func NewAzurePublisher(containerURL, prefix string, httpClient *nethttp.Client) (*AzurePublisher, error) {
	u, err := url.Parse(containerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid azure container url")
	}
	if u.RawQuery == "" {
		return nil, errors.New("azure container url must include a SAS token")
	}

	opts := &container.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}
	client, err := container.NewClientWithNoCredential(containerURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &AzurePublisher{client: client, prefix: strings.Trim(prefix, "/"), retry: http.DefaultRetryConfig()}, nil
}

// Name implements FilePublisher.
func (p *AzurePublisher) Name() string { return "azure" }

// Upload writes localPath as a block blob at prefix/runID/<base name>.
func (p *AzurePublisher) Upload(ctx context.Context, runID, localPath string) (string, error) {
	name := ObjectKey(p.prefix, runID, localPath)
	bb := p.client.NewBlockBlobClient(name)

	err := http.ExecuteWithRetry(ctx, p.retry, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = bb.UploadFile(ctx, f, &blockblob.UploadFileOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(xlsxContentType)},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload blob %s: %w", name, err)
	}
	return blobLocation(p.client.URL(), name), nil
}

// blobLocation is the readable blob address reported to users: the container
// URL without its SAS token followed by the unescaped blob name.
func blobLocation(containerURL, name string) string {
	return strings.TrimRight(stripQuery(containerURL), "/") + "/" + name
}

// stripQuery drops the SAS token from a URL before it is logged or reported.
func stripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
