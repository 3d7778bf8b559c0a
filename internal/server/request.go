package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"cropdoc/internal/types"
)

var (
	errNoImage  = errors.New("image is required")
	errTooLarge = errors.New("image is too large")
)

type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{status: http.StatusBadRequest, err: err}
}

// jsonRequest is the JSON body of POST /v1/diagnoses and the first frame of
// the WebSocket stream. Image is base64, optionally as a data URL.
type jsonRequest struct {
	Image    string         `json:"image"`
	MIMEType string         `json:"mimeType,omitempty"`
	Metadata types.Metadata `json:"metadata"`
}

func (j jsonRequest) toRequest() (*types.DiagnosisRequest, error) {
	img, mimeType, err := decodeImage(j.Image)
	if err != nil {
		return nil, badRequest(err)
	}
	if j.MIMEType != "" {
		mimeType = j.MIMEType
	}
	return &types.DiagnosisRequest{Image: img, MIMEType: mimeType, Metadata: j.Metadata}, nil
}

// decodeRequest reads either multipart/form-data (an "image" file plus an
// optional "metadata" JSON field) or a JSON body.
func decodeRequest(w http.ResponseWriter, r *http.Request, maxUpload int64) (*types.DiagnosisRequest, error) {
	// base64 inflates by a third; leave room for metadata.
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload*4/3+64<<10)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var req *types.DiagnosisRequest
	var err error
	switch mediaType {
	case "multipart/form-data":
		req, err = decodeMultipart(r, maxUpload)
	case "application/json", "":
		var body jsonRequest
		if derr := json.NewDecoder(r.Body).Decode(&body); derr != nil {
			return nil, classifyBodyError(derr)
		}
		req, err = body.toRequest()
	default:
		return nil, &requestError{status: http.StatusUnsupportedMediaType, err: fmt.Errorf("unsupported content type %q", mediaType)}
	}
	if err != nil {
		return nil, err
	}
	if int64(len(req.Image)) > maxUpload {
		return nil, &requestError{status: http.StatusRequestEntityTooLarge, err: errTooLarge}
	}
	return req, nil
}

func decodeMultipart(r *http.Request, maxUpload int64) (*types.DiagnosisRequest, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, classifyBodyError(err)
	}
	file, hdr, err := r.FormFile("image")
	if err != nil {
		return nil, badRequest(errNoImage)
	}
	defer file.Close()
	img, err := io.ReadAll(file)
	if err != nil {
		return nil, classifyBodyError(err)
	}
	if len(img) == 0 {
		return nil, badRequest(errNoImage)
	}

	req := &types.DiagnosisRequest{Image: img, MIMEType: hdr.Header.Get("Content-Type")}
	if raw := strings.TrimSpace(r.FormValue("metadata")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			return nil, badRequest(fmt.Errorf("metadata: %w", err))
		}
	}
	return req, nil
}

func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", errNoImage
	}
	var mimeType string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		head, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("malformed data URL")
		}
		mimeType, _, _ = strings.Cut(head, ";")
		s = data
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if img, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, "", fmt.Errorf("image is not valid base64: %w", err)
		}
	}
	if len(img) == 0 {
		return nil, "", errNoImage
	}
	return img, mimeType, nil
}

func classifyBodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &requestError{status: http.StatusRequestEntityTooLarge, err: errTooLarge}
	}
	return badRequest(fmt.Errorf("read request: %w", err))
}

func writeRequestError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, re.status, re.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
