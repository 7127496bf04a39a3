package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type azureBucket struct {
	client    *azblob.Client
	container string
}

func (s *Store) openAzure(_ context.Context, container string) (Bucket, error) {
	account := firstNonEmpty(s.opts.AzureAccountName, os.Getenv("AZURE_STORAGE_ACCOUNT"))
	key := firstNonEmpty(s.opts.AzureAccountKey, os.Getenv("AZURE_STORAGE_KEY"))
	if account == "" || key == "" {
		return nil, errors.New("azure account name and key are required")
	}

	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := firstNonEmpty(s.opts.AzureServiceURL, fmt.Sprintf("https://%s.blob.core.windows.net", account))
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &azureBucket{client: client, container: container}, nil
}

func (b *azureBucket) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (b *azureBucket) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, nil)
	return err
}

func (b *azureBucket) List(ctx context.Context, prefix string) ([]string, error) {
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}
