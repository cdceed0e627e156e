// Package blobstore persists rendered invoice PDFs in Azure Blob Storage
// and hands out short-lived read URLs for downloads.
package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/smallbiznis/chatorder/internal/config"
	"go.uber.org/zap"
)

// DownloadTTL bounds how long a handed-out invoice URL stays valid.
const DownloadTTL = 5 * time.Minute

const pdfContentType = "application/pdf"

// Store uploads blobs and signs download URLs with the account key.
type Store struct {
	client     *azblob.Client
	credential *azblob.SharedKeyCredential
	serviceURL string
	container  string
	log        *zap.Logger
	now        func() time.Time
}

func New(cfg config.Config, log *zap.Logger) (*Store, error) {
	credential, err := azblob.NewSharedKeyCredential(cfg.StorageAccountName, cfg.StorageAccountKey)
	if err != nil {
		return nil, fmt.Errorf("storage credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.StorageAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &Store{
		client:     client,
		credential: credential,
		serviceURL: serviceURL,
		container:  cfg.StorageContainer,
		log:        log.Named("blobstore"),
		now:        time.Now,
	}, nil
}

// UploadInvoicePDF stores the rendered document under a name derived from
// the invoice number. Re-uploading the same invoice overwrites in place, so
// regeneration stays idempotent.
func (s *Store) UploadInvoicePDF(ctx context.Context, orgID, invoiceNumber string, data []byte) (string, error) {
	name := blobName(orgID, invoiceNumber)
	contentType := pdfContentType
	_, err := s.client.UploadBuffer(ctx, s.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	s.log.Debug("invoice pdf uploaded",
		zap.String("blob", name),
		zap.Int("bytes", len(data)),
	)
	return name, nil
}

// SignedURL returns a read-only URL valid for DownloadTTL. The URL embeds a
// SAS token, so callers need no further credentials.
func (s *Store) SignedURL(name string) (string, error) {
	now := s.now().UTC()
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-time.Minute),
		ExpiryTime:    now.Add(DownloadTTL),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: s.container,
		BlobName:      name,
	}
	params, err := values.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", name, err)
	}
	return fmt.Sprintf("%s%s/%s?%s", s.serviceURL, s.container, name, params.Encode()), nil
}

// InvoiceURL signs a download URL for a previously uploaded invoice PDF.
func (s *Store) InvoiceURL(orgID, invoiceNumber string) (string, error) {
	return s.SignedURL(blobName(orgID, invoiceNumber))
}

func blobName(orgID, invoiceNumber string) string {
	return fmt.Sprintf("%s/invoice_%s.pdf", orgID, invoiceNumber)
}
