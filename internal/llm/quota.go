package llm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// quotaSignatures are lowercase fragments providers use in rate limit errors
var quotaSignatures = []string{
	"error 429",
	"status 429",
	"code 429",
	"429 too many requests",
	"quota",
	"rate limit",
	"ratelimit",
	"rate_limit",
	"resource_exhausted",
	"resourceexhausted",
	"too many requests",
}

// IsQuotaError reports whether err is a provider quota or rate limit rejection
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range quotaSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
