package devauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// HTTPAuth exposes a Service as JSON endpoints.
type HTTPAuth struct {
	Service *Service

	// EmailSender delivers reset links. Defaults to ConsoleEmailSender.
	EmailSender SendEmail

	// ResetURL is the base of reset links; the token is appended as the
	// last path segment. Required for forgotPassword. Links are never built
	// from request headers.
	ResetURL string

	// PathPrefix is where the user routes are mounted. Defaults to "/api/v1/user".
	PathPrefix string

	Logger *slog.Logger
}

// Handler returns a router with the user routes, a health check and a
// JSON 404 for everything else.
func (h *HTTPAuth) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	h.Routes(r.PathPrefix(h.prefix()).Subrouter())
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status": "fail",
			"error":  "Can't find " + r.URL.Path + " on this server",
		})
	})
	return r
}

// Routes registers the user routes on r.
func (h *HTTPAuth) Routes(r *mux.Router) {
	guard := h.Service.Guard()

	r.HandleFunc("/signup", h.HandleSignup).Methods(http.MethodPost)
	r.HandleFunc("/login", h.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/forgotPassword", h.HandleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/resetPassword/{token}", h.HandleResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/oauth/{provider}", h.HandleOAuthCallback).Methods(http.MethodGet)
	r.Handle("/password", guard.Middleware(http.HandlerFunc(h.HandleChangePassword))).Methods(http.MethodPatch)
	r.Handle("/me", guard.Middleware(http.HandlerFunc(h.HandleMe))).Methods(http.MethodGet)
}

func (h *HTTPAuth) prefix() string {
	if h.PathPrefix == "" {
		return "/api/v1/user"
	}
	return strings.TrimRight(h.PathPrefix, "/")
}

func (h *HTTPAuth) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *HTTPAuth) emailSender() SendEmail {
	if h.EmailSender != nil {
		return h.EmailSender
	}
	return &ConsoleEmailSender{Logger: h.Logger}
}

// HandleSignup creates a password account.
func (h *HTTPAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, token, err := h.Service.Signup(r.Context(), body["email"], body["password"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSession(w, http.StatusCreated, token, user)
}

// HandleLogin signs in with email and password.
func (h *HTTPAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, token, err := h.Service.Login(r.Context(), body["email"], body["password"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, token, user)
}

// HandleForgotPassword issues a reset token and emails the reset link.
func (h *HTTPAuth) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.ResetURL == "" {
		h.logger().Error("forgotPassword called without a configured reset URL")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "error",
			"error":  "Password reset is not available.",
		})
		return
	}
	email := NormalizeEmail(body["email"])
	token, err := h.Service.RequestReset(r.Context(), email)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.emailSender().SendPasswordResetEmail(email, h.resetLink(token)); err != nil {
		h.logger().Error("failed to send reset email", "email", email, "err", err)
		if derr := h.Service.DiscardReset(r.Context(), email); derr != nil {
			h.logger().Error("failed to discard undelivered reset", "email", email, "err", derr)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "error",
			"error":  "There was an error sending the email. Try again later!",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Token sent to email!",
	})
}

func (h *HTTPAuth) resetLink(token string) string {
	return strings.TrimRight(h.ResetURL, "/") + "/" + token
}

// HandleResetPassword consumes a reset token and sets a new password.
func (h *HTTPAuth) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, token, err := h.Service.ConsumeReset(r.Context(), mux.Vars(r)["token"], body["password"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, token, user)
}

// HandleChangePassword changes the password of the signed-in user.
func (h *HTTPAuth) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeError(w, ErrMissingToken)
		return
	}
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.Service.ChangePassword(r.Context(), user.ID, body["currentPassword"], body["newPassword"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "token": token})
}

// HandleOAuthCallback completes a provider sign-in from ?code=.
func (h *HTTPAuth) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if e := r.URL.Query().Get("error"); e != "" {
		h.fail(w, r, ProviderFailure(provider, errors.New("authorization denied: "+e)))
		return
	}
	user, token, err := h.Service.OAuthLogin(r.Context(), provider, r.URL.Query().Get("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, token, user)
}

// HandleMe returns the signed-in user.
func (h *HTTPAuth) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeError(w, ErrMissingToken)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]any{"user": user},
	})
}

func (h *HTTPAuth) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *HTTPAuth) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Code == ErrCodeStoreUnavailable || ae.Code == ErrCodeProviderExchangeFailed {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, err)
}

// parseBody reads a JSON object or form body into string fields.
func parseBody(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	contentType := r.Header.Get("Content-Type")
	out := map[string]string{}

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, NewAuthError(ErrCodeInvalidInput, "Error parsing form", "")
		}
		for k := range r.PostForm {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		return nil, NewAuthError(ErrCodeInvalidInput, "Invalid post body", "")
	}
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidNewPassword, ErrCodeInvalidOrExpired:
		return http.StatusBadRequest
	case ErrCodeDuplicateEmail:
		return http.StatusConflict
	case ErrCodeIncorrectCredentials, ErrCodeNoPasswordSet, ErrCodeIncorrectCurrentPassword,
		ErrCodeMissingToken, ErrCodeUnauthenticated, ErrCodeUserNoLongerExists:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnverifiedEmail:
		return http.StatusForbidden
	case ErrCodeNoEmailAvailable:
		return http.StatusUnprocessableEntity
	case ErrCodeProviderExchangeFailed:
		return http.StatusBadGateway
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	var ae *AuthError
	if !errors.As(err, &ae) {
		writeJSON(w, status, map[string]any{
			"status": "error",
			"error":  "Unable to process the request.",
		})
		return
	}
	resp := map[string]any{
		"status": "fail",
		"code":   ae.Code,
		"error":  ae.Message,
	}
	if ae.Field != "" {
		resp["field"] = ae.Field
	}
	if ae.Provider != "" {
		resp["provider"] = ae.Provider
	}
	writeJSON(w, status, resp)
}

func writeSession(w http.ResponseWriter, status int, token string, user *User) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, map[string]any{
		"status": "success",
		"token":  token,
		"data":   map[string]any{"user": user},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
