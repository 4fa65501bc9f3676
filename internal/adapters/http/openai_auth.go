package httpadapter

import (
	"net/http"
	"strings"
)

// openAICompatAuth guards the OpenAI-compatible routes with a static bearer
// token. An empty key leaves them open.
func (rt *Router) openAICompatAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.openAICompatAPIKey == "" || isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.openAICompatAPIKey) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="studynet"`)
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
	})
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token == expectedToken
}
