package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"filetool/internal/convert"
	"filetool/internal/logging"
	"filetool/internal/media"
	"filetool/internal/middleware"
	"filetool/internal/streaming"
)

const (
	// multipartOverhead is the body allowance on top of the file size limit
	// for boundaries, headers and form fields.
	multipartOverhead = 1 << 20

	// maxMemory is how much of a multipart body is held in memory before
	// spilling to temporary files.
	maxMemory = 32 << 20
)

// statusForCode maps dispatcher error codes to HTTP statuses.
var statusForCode = map[convert.Code]int{
	convert.CodeFileTooLarge:           http.StatusRequestEntityTooLarge,
	convert.CodeIdenticalFormat:        http.StatusBadRequest,
	convert.CodeUnsupportedConversion:  http.StatusUnsupportedMediaType,
	convert.CodeLocalEngineUnavailable: http.StatusServiceUnavailable,
	convert.CodeExtractionUnsupported:  http.StatusUnprocessableEntity,
	convert.CodeRemoteError:            http.StatusBadGateway,
	convert.CodeTimeout:                http.StatusGatewayTimeout,
	convert.CodeRemoteConversionFailed: http.StatusBadGateway,
	convert.CodeCanceled:               499,
}

// Convert accepts a multipart upload and returns the converted file.
//
// Form fields:
//   - file: the source file (required)
//   - target, targetFormat or format: output extension (convert mode)
//   - mode: convert (default) or compress
//   - quality: 1-100
//   - width, height: optional dimension hints
//   - brightness, overlayColor, overlayOpacity, overlayText, textColor: image edits
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	if h.opts.Admission != nil {
		if err := h.opts.Admission.Admit(r.Context()); err != nil {
			logging.Debug("Conversion not admitted: %v", err)
			writeJSONError(w, "Server is busy, try again shortly", "server_busy", http.StatusServiceUnavailable)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			limit := h.dispatcher.Config().MaxFileSizeBytes
			writeJSONError(w, convert.UserMessage(&convert.Error{
				Code:   convert.CodeFileTooLarge,
				Limit:  limit,
				Actual: max(r.ContentLength-multipartOverhead, limit+1),
			}), string(convert.CodeFileTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "Invalid upload: "+err.Error(), "bad_request", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Debug("failed to remove multipart temp files: %v", err)
		}
	}()

	req, err := h.parseConvertRequest(r)
	if err != nil {
		writeJSONError(w, err.Error(), "bad_request", http.StatusBadRequest)
		return
	}

	logging.Debug("Convert: %s (%d bytes) mode=%s target=%s", req.File.Name, req.File.Size(), req.Mode, req.TargetFormat)

	result, err := h.dispatcher.Run(r.Context(), req, nil)
	if err != nil {
		code := convert.CodeOf(err)
		status, ok := statusForCode[code]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			logging.Warn("Conversion of %s failed: %v", req.File.Name, err)
		} else {
			logging.Debug("Conversion of %s rejected: %v", req.File.Name, err)
		}
		writeJSONError(w, convert.UserMessage(err), string(code), status)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", attachment(result.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set(middleware.StrategyHeader, string(result.Strategy))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := streaming.Send(r.Context(), w, result.Data, h.opts.Stream); err != nil {
		logging.Debug("Delivery of %s stopped: %v", result.Name, err)
	}
}

func (h *Handlers) parseConvertRequest(r *http.Request) (convert.Request, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return convert.Request{}, fmt.Errorf("missing file field")
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logging.Debug("failed to close upload: %v", cerr)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return convert.Request{}, fmt.Errorf("failed to read upload")
	}

	req := convert.Request{
		File: convert.SourceFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
		TargetFormat: firstValue(r, "target", "targetFormat", "format"),
		Mode:         convert.Mode(r.FormValue("mode")),
	}
	if _, err := convert.ParseMode(string(req.Mode)); err != nil {
		return convert.Request{}, err
	}

	if q := r.FormValue("quality"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || math.IsNaN(v) || v <= 0 || v > 100 {
			return convert.Request{}, fmt.Errorf("quality must be between 1 and 100")
		}
		req.Quality = v / 100
	}
	if req.Width, err = formInt(r, "width"); err != nil {
		return convert.Request{}, err
	}
	if req.Height, err = formInt(r, "height"); err != nil {
		return convert.Request{}, err
	}

	edits, err := parseEdits(r)
	if err != nil {
		return convert.Request{}, err
	}
	req.Edits = edits
	return req, nil
}

func parseEdits(r *http.Request) (*media.Edits, error) {
	e := &media.Edits{
		OverlayColor: strings.TrimSpace(r.FormValue("overlayColor")),
		OverlayText:  r.FormValue("overlayText"),
		TextColor:    strings.TrimSpace(r.FormValue("textColor")),
	}
	var err error
	if e.Brightness, err = formFloat(r, "brightness"); err != nil {
		return nil, err
	}
	if e.OverlayOpacity, err = formFloat(r, "overlayOpacity"); err != nil {
		return nil, err
	}
	if e.IsZero() {
		return nil, nil
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func firstValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.FormValue(k)); v != "" {
			return v
		}
	}
	return ""
}

func formInt(r *http.Request, key string) (int, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return v, nil
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
