// Package telephony is the phone entry point: Twilio webhooks drive the same
// turn service as the browser client, with Twilio's own recording taking the
// place of client-side silence detection.
package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// paramsKey is the context key under which Auth stashes the validated form
// parameters for the handlers.
const paramsKey = "twilioParams"

// signaturePayload canonicalizes a webhook request the way Twilio signs it:
// the full request URL followed by each form key and value, keys in
// lexicographic order.
func signaturePayload(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	return b.String()
}

// sign computes the base64 HMAC-SHA1 digest Twilio puts in
// X-Twilio-Signature.
func sign(authToken, payload string) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Auth validates webhook signatures on /twilio/ routes and stashes the
// parsed form parameters in the context. Requests outside /twilio/ pass
// through untouched.
func Auth(getAuthToken func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/twilio/") {
				return next(c)
			}

			token := getAuthToken()
			if token == "" {
				return echo.NewHTTPError(http.StatusInternalServerError, "twilio auth token not configured")
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
			}
			form, err := url.ParseQuery(string(body))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "malformed form body")
			}

			given := req.Header.Get("X-Twilio-Signature")
			want := sign(token, signaturePayload("https://"+req.Host+req.URL.Path, form))
			if given == "" || !hmac.Equal([]byte(given), []byte(want)) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid twilio signature")
			}

			params := make(map[string]string, len(form))
			for k := range form {
				params[k] = form.Get(k)
			}
			c.Set(paramsKey, params)
			return next(c)
		}
	}
}
