package updates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/google/uuid"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

// Response headers and part metadata.
const (
	HeaderSFVersion    = "expo-sfv-version"
	HeaderSignature    = "expo-signature"
	HeaderCacheControl = "cache-control"
	HeaderContentType  = "content-type"

	sfVersion         = "0"
	cacheControl      = "private, max-age=0"
	jsonPartType      = "application/json; charset=utf-8"
	extensionsPart    = "extensions"
	multipartMixedFmt = "multipart/mixed; boundary=%s"
)

// Signer produces expo-signature header values.
type Signer interface {
	Sign(data []byte) (string, error)
}

// Response is a fully rendered update response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Write sends the response.
func (r *Response) Write(w http.ResponseWriter) error {
	for name, values := range r.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}

	w.WriteHeader(r.Status)

	_, err := w.Write(r.Body)

	return err
}

// Packager serializes payloads into multipart update responses.
// It is safe for concurrent use.
type Packager struct {
	// signer is nil when code signing is not configured.
	signer Signer
	// assetRequestHeaders are attached to every asset in the extensions part.
	assetRequestHeaders map[string]string
	// boundary returns a fresh multipart boundary per response.
	boundary func() string
}

// PackagerOption configures a Packager.
type PackagerOption func(*Packager)

// WithSigner enables expo-signature headers.
func WithSigner(signer Signer) PackagerOption {
	return func(p *Packager) {
		p.signer = signer
	}
}

// WithAssetRequestHeaders sets the headers clients attach when fetching assets.
func WithAssetRequestHeaders(headers map[string]string) PackagerOption {
	return func(p *Packager) {
		p.assetRequestHeaders = maps.Clone(headers)
	}
}

// NewPackager creates a packager.
func NewPackager(opts ...PackagerOption) *Packager {
	p := &Packager{
		boundary: uuid.NewString,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Package renders payload for protocolVersion. When expectSignature is set,
// the payload part is signed; without a configured key that is an error.
func (p *Packager) Package(
	payload update.Payload,
	protocolVersion update.ProtocolVersion,
	expectSignature bool,
) (*Response, error) {
	if expectSignature && p.signer == nil {
		return nil, update.ErrMissingSigningKey
	}

	body, err := encodeJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", payload.PartName(), err)
	}

	partHeader := jsonPartHeader(payload.PartName())

	if expectSignature {
		signature, signErr := p.signer.Sign(body)
		if signErr != nil {
			return nil, signErr
		}

		partHeader.Set(HeaderSignature, signature)
	}

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)
	if err = writer.SetBoundary(p.boundary()); err != nil {
		return nil, fmt.Errorf("set multipart boundary: %w", err)
	}

	if err = writePart(writer, partHeader, body); err != nil {
		return nil, err
	}

	// Only manifests reference assets.
	if m, ok := payload.(*update.Manifest); ok {
		extensions, extErr := encodeJSON(p.extensions(m))
		if extErr != nil {
			return nil, fmt.Errorf("encode extensions: %w", extErr)
		}

		if err = writePart(writer, jsonPartHeader(extensionsPart), extensions); err != nil {
			return nil, err
		}
	}

	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	header := make(http.Header)
	header.Set(HeaderProtocolVersion, strconv.Itoa(int(protocolVersion)))
	header.Set(HeaderSFVersion, sfVersion)
	header.Set(HeaderCacheControl, cacheControl)
	header.Set(HeaderContentType, fmt.Sprintf(multipartMixedFmt, writer.Boundary()))

	return &Response{
		Status: http.StatusOK,
		Header: header,
		Body:   buf.Bytes(),
	}, nil
}

// manifestExtensions is the extensions part of a manifest response.
type manifestExtensions struct {
	AssetRequestHeaders map[string]map[string]string `json:"assetRequestHeaders"`
}

func (p *Packager) extensions(m *update.Manifest) manifestExtensions {
	assets := m.AllAssets()
	headers := make(map[string]map[string]string, len(assets))

	for _, asset := range assets {
		assetHeaders := maps.Clone(p.assetRequestHeaders)
		if assetHeaders == nil {
			assetHeaders = map[string]string{}
		}

		headers[asset.Key] = assetHeaders
	}

	return manifestExtensions{AssetRequestHeaders: headers}
}

func jsonPartHeader(name string) textproto.MIMEHeader {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf("form-data; name=%q", name))
	header.Set("Content-Type", jsonPartType)

	return header
}

func writePart(writer *multipart.Writer, header textproto.MIMEHeader, body []byte) error {
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", header.Get("Content-Disposition"), err)
	}

	if _, err = part.Write(body); err != nil {
		return fmt.Errorf("write part: %w", err)
	}

	return nil
}

// encodeJSON renders compact JSON without HTML escaping, so asset URLs keep
// their literal ampersands and the signed bytes equal the sent bytes.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
