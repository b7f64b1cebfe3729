package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/pkg/errs"
)

type sample struct {
	Name string `json:"name"`
}

func newJSONRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantCode    int
	}{
		{"valid", `{"name":"general"}`, "application/json", 0},
		{"charset suffix", `{"name":"general"}`, "application/json; charset=utf-8", 0},
		{"wrong content type", `{"name":"general"}`, "text/plain", errs.ErrUnsupportedMediaType},
		{"malformed", `{"name":`, "application/json", errs.ErrInvalidJSONFormat},
		{"unknown field", `{"nom":"x"}`, "application/json", errs.ErrInvalidJSONFormat},
		{"trailing document", `{"name":"a"}{"name":"b"}`, "application/json", errs.ErrExtraContentInBody},
		{"too large", `{"name":"` + strings.Repeat("a", int(MaxJSONBodySize)) + `"}`, "application/json", errs.ErrRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst sample
			err := BindJSON(httptest.NewRecorder(), newJSONRequest(tt.body, tt.contentType), &dst)
			if tt.wantCode == 0 {
				require.Nil(t, err)
				assert.Equal(t, "general", dst.Name)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x", nil)
	assert.Equal(t, 20, QueryInt(r, "limit", 50))
	assert.Equal(t, 50, QueryInt(r, "bad", 50))
	assert.Equal(t, 7, QueryInt(r, "missing", 7))
}
