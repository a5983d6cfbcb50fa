package checker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/minio/sha256-simd"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/service/common"
)

// assetFetchConcurrency bounds parallel asset downloads.
const assetFetchConcurrency = 4

// extensionsPartName is the multipart field holding asset request headers.
const extensionsPartName = "extensions"

var (
	// errNoBodyPart is returned when a response has neither a manifest nor a directive.
	errNoBodyPart = errors.New("response has no manifest or directive part")
	// errSignatureMissing is returned when verification is requested but a part is unsigned.
	errSignatureMissing = errors.New("part is not signed")
	// errHashMismatch is returned when a downloaded asset does not match its manifest hash.
	errHashMismatch = errors.New("asset hash mismatch")
)

// Verifier checks an expo-signature header against the signed bytes.
type Verifier interface {
	Verify(data []byte, header string) (string, error)
}

// Report summarises one update check.
type Report struct {
	// ProtocolVersion is the version echoed by the server.
	ProtocolVersion string
	// Manifest is set for a normal update.
	Manifest *update.Manifest
	// Directive is set for a rollback or no-update answer.
	Directive *update.Directive
	// SignatureKeyID is the keyid of a verified signature.
	SignatureKeyID string
	// AssetsVerified counts downloaded assets whose hash matched.
	AssetsVerified int
	// AssetBytes is the total size of the verified assets.
	AssetBytes uint64
}

// CheckOptions selects the verification steps of Check.
type CheckOptions struct {
	// Verifier validates the part signature; nil skips verification.
	Verifier Verifier
	// VerifyAssets downloads every manifest asset and checks its SHA-256 hash.
	VerifyAssets bool
}

// Check asks the server for an update and verifies the answer.
func Check(ctx context.Context, client *common.Client, req *update.Request, opts CheckOptions) (*Report, error) {
	resp, err := client.CheckForUpdate(ctx, req, opts.Verifier != nil)
	if err != nil {
		return nil, err
	}

	report := &Report{ProtocolVersion: resp.ProtocolVersion}

	body, found := resp.Part((&update.Manifest{}).PartName())
	if found {
		report.Manifest = new(update.Manifest)
		err = json.Unmarshal(body.Body, report.Manifest)
	} else if body, found = resp.Part((&update.Directive{}).PartName()); found {
		report.Directive = new(update.Directive)
		err = json.Unmarshal(body.Body, report.Directive)
	}

	if !found {
		return nil, errNoBodyPart
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", body.Name, err)
	}

	if opts.Verifier != nil {
		if body.Signature == "" {
			return nil, fmt.Errorf("%w: %s", errSignatureMissing, body.Name)
		}

		report.SignatureKeyID, err = opts.Verifier.Verify(body.Body, body.Signature)
		if err != nil {
			return nil, fmt.Errorf("verify %s signature: %w", body.Name, err)
		}
	}

	if opts.VerifyAssets && report.Manifest != nil {
		headers, headersErr := assetRequestHeaders(resp)
		if headersErr != nil {
			return nil, headersErr
		}

		if err = verifyAssets(ctx, client, report, headers); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// assetRequestHeaders decodes the extensions part, keyed by asset key.
func assetRequestHeaders(resp *common.CheckResponse) (map[string]map[string]string, error) {
	part, ok := resp.Part(extensionsPartName)
	if !ok {
		return nil, nil
	}

	var extensions struct {
		AssetRequestHeaders map[string]map[string]string `json:"assetRequestHeaders"`
	}

	if err := json.Unmarshal(part.Body, &extensions); err != nil {
		return nil, fmt.Errorf("decode extensions: %w", err)
	}

	return extensions.AssetRequestHeaders, nil
}

// verifyAssets downloads every manifest asset and compares its SHA-256 with the manifest hash.
func verifyAssets(
	ctx context.Context,
	client *common.Client,
	report *Report,
	headers map[string]map[string]string,
) error {
	assets := report.Manifest.AllAssets()
	sizes := make([]uint64, len(assets))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(assetFetchConcurrency)

	for i, asset := range assets {
		group.Go(func() error {
			downloaded, err := client.FetchAsset(groupCtx, asset.URL, headers[asset.Key])
			if err != nil {
				return fmt.Errorf("asset %s: %w", asset.Key, err)
			}

			sum := sha256.Sum256(downloaded.Data)
			if got := base64.RawURLEncoding.EncodeToString(sum[:]); got != asset.Hash {
				return fmt.Errorf("%w: %s: manifest %s, downloaded %s", errHashMismatch, asset.Key, asset.Hash, got)
			}

			sizes[i] = uint64(len(downloaded.Data))

			logger.DebugKV(groupCtx, "Asset verified",
				"key", asset.Key,
				"content_type", downloaded.ContentType,
				"size", humanize.Bytes(sizes[i]),
			)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	for _, size := range sizes {
		report.AssetBytes += size
	}

	report.AssetsVerified = len(assets)

	return nil
}
