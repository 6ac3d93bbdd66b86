package processing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const maxRequestBytes = 1 << 20

// TestMode is the request's testMode flag: false, true or "debug"
type TestMode Mode

func (t *TestMode) UnmarshalJSON(b []byte) error {
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		if flag {
			*t = TestMode(ModeTest)
		} else {
			*t = TestMode(ModeNormal)
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil || Mode(s) != ModeDebug {
		return fmt.Errorf("testMode must be a boolean or \"debug\"")
	}
	*t = TestMode(ModeDebug)
	return nil
}

type extractRequest struct {
	ImageURL string   `json:"imageUrl"`
	TestMode TestMode `json:"testMode"`
}

type extractResponse struct {
	Success        bool                 `json:"success"`
	RequestID      string               `json:"request_id"`
	Mode           Mode                 `json:"mode,omitempty"`
	Vendor         string               `json:"vendor"`
	Total          float64              `json:"total"`
	Date           string               `json:"date"`
	Subtotal       *float64             `json:"subtotal"`
	Tax            *float64             `json:"tax"`
	LineItems      []receipt.LineItem   `json:"lineItems"`
	DocumentType   receipt.DocumentType `json:"document_type"`
	Confidence     receipt.Confidences  `json:"confidence"`
	Quality        receipt.Quality      `json:"quality"`
	Validation     receipt.Validation   `json:"validation"`
	ProcessingTime int64                `json:"processing_time"` // milliseconds
	FromCache      bool                 `json:"from_cache"`
}

type debugResponse struct {
	Success        bool   `json:"success"`
	RequestID      string `json:"request_id"`
	Mode           Mode   `json:"mode"`
	RawText        string `json:"raw_text"`
	TextLength     int    `json:"text_length"`
	ProcessingTime int64  `json:"processing_time"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   Code   `json:"error"`
	Message string `json:"message"`
	Debug   string `json:"debug,omitempty"`
}

func newExtractResponse(result *Result) extractResponse {
	r := result.Record
	resp := extractResponse{
		Success:        true,
		RequestID:      result.RequestID,
		Vendor:         r.Vendor.Value,
		Total:          r.Total.Value,
		Date:           r.Date.Value,
		LineItems:      r.LineItems,
		DocumentType:   r.DocumentType.Value,
		Confidence:     r.Confidences(),
		Quality:        r.Quality,
		Validation:     r.Validation,
		ProcessingTime: result.ProcessingTime.Milliseconds(),
		FromCache:      result.FromCache,
	}
	if result.Mode == ModeTest {
		resp.Mode = ModeTest
	}
	if r.Subtotal != nil {
		resp.Subtotal = receipt.Float(r.Subtotal.Value)
	}
	if r.Tax != nil {
		resp.Tax = receipt.Float(r.Tax.Value)
	}
	if resp.LineItems == nil {
		resp.LineItems = []receipt.LineItem{}
	}
	if resp.Validation.Issues == nil {
		resp.Validation.Issues = []receipt.Issue{}
	}
	return resp
}

// handleExtract extracts a receipt from the image referenced in the request body
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, newError(CodeMethodNotAllowed, "Only POST requests are supported", nil))
		return
	}

	req, err := decodeExtractRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Process(r.Context(), req.ImageURL, Mode(req.TestMode))
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Mode == ModeDebug {
		writeJSON(w, http.StatusOK, debugResponse{
			Success:        true,
			RequestID:      result.RequestID,
			Mode:           ModeDebug,
			RawText:        result.RawText,
			TextLength:     len(result.RawText),
			ProcessingTime: result.ProcessingTime.Milliseconds(),
		})
		return
	}
	writeJSON(w, http.StatusOK, newExtractResponse(result))
}

func decodeExtractRequest(r *http.Request) (*extractRequest, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, newError(CodeInvalidRequest, "Content-Type must be application/json", err)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, newError(CodeInvalidRequest, "Could not read request body", err)
	}

	req := &extractRequest{TestMode: TestMode(ModeNormal)}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, newError(CodeInvalidRequest, "Request body must be a JSON object with an imageUrl", err)
	}
	return req, nil
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = asError(err)
	}
	writeJSON(w, perr.Status(), errorResponse{
		Success: false,
		Error:   perr.Code,
		Message: perr.Message,
		Debug:   perr.Debug,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
