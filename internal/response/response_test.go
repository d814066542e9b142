package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"absent", "", false},
		{"propagated", "req-123", true},
		{"too long", strings.Repeat("x", maxRequestIDLen+1), false},
		{"control characters", "abc\tdef", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, nil) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if got == "" {
				t.Fatal("missing X-Request-ID header")
			}
			if (got == tt.header) != tt.keep {
				t.Fatalf("X-Request-ID = %q, keep = %v", got, tt.keep)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Metadata.RequestID != got {
				t.Fatalf("metadata request id = %q, header = %q", body.Metadata.RequestID, got)
			}
		})
	}
}

func TestFailEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"question_id": "wajib"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != ErrValidation || body.Error.Message != GetMessage(ErrValidation) {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.Error.Fields["question_id"] != "wajib" {
		t.Fatalf("fields = %v", body.Error.Fields)
	}
}

func TestSuccessWithPaginationDerivesPages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		SuccessWithPagination(c, http.StatusOK, []int{}, &Pagination{Page: 1, PerPage: 10, TotalItems: 21})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Pagination == nil || body.Pagination.TotalPages != 3 {
		t.Fatalf("pagination = %+v", body.Pagination)
	}
}
