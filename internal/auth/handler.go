package auth

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/branchdesk/internal/platform/httpx"
	"github.com/odyssey-erp/branchdesk/internal/shared"
	"github.com/odyssey-erp/branchdesk/internal/users"
	"github.com/odyssey-erp/branchdesk/internal/view"
)

// SessionStore is the part of the session manager the auth endpoints use.
type SessionStore interface {
	TTL() time.Duration
	Renew(ctx context.Context, sess *shared.Session) error
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// Profiles looks up signed-in users.
type Profiles interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	profiles    Profiles
	templates   *view.Engine
	sessions    SessionStore
	csrfManager *shared.CSRFManager
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, profiles Profiles, templates *view.Engine, sessions SessionStore, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &Handler{
		logger:      logger,
		service:     service,
		profiles:    profiles,
		templates:   templates,
		sessions:    sessions,
		csrfManager: csrf,
		validator:   v,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
	r.Get("/csrf", h.handleCSRF)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
	}
	if err := h.templates.Render(w, http.StatusOK, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		httpx.InternalError(w)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := h.decodeLogin(w, r)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, httpx.MsgBadRequest)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.RespondError(w, h.logger, err)
			return
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = loginReason(fe)
		}
		httpx.FailFields(w, http.StatusBadRequest, httpx.MsgValidationFailed, fields)
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Fail(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		httpx.RespondError(w, h.logger, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.InternalError(w)
		return
	}
	if err := h.sessions.Renew(r.Context(), sess); err != nil {
		h.logger.Error("renew session", slog.Any("error", err))
		httpx.InternalError(w)
		return
	}
	// The old token was bound to the previous session id.
	sess.Delete(shared.CSRFSessionKey)
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	expiresAt := time.Now().Add(h.sessions.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	httpx.OK(w, http.StatusOK, "Login successful", Profile{ID: user.ID, Email: user.Email, Name: user.Name})
}

func (h *Handler) decodeLogin(w http.ResponseWriter, r *http.Request) (loginForm, error) {
	var form loginForm
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := httpx.DecodeJSON(w, r, &form)
		return form, err
	}
	if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Email = r.PostFormValue("email")
	form.Password = r.PostFormValue("password")
	return form, nil
}

func loginReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "email must be a valid address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

// handleLogout clears the session. It never lets an error or panic escape:
// any failure becomes a generic 500 envelope and the cause is only logged.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" {
		sessionID = sess.ID
	}

	err := httpx.Safely(func() error {
		return h.sessions.Clear(r.Context(), w, r)
	})
	if err != nil {
		attrs := []any{slog.Any("error", err)}
		var panicErr *httpx.PanicError
		if errors.As(err, &panicErr) {
			attrs = append(attrs, slog.String("stack", string(panicErr.Stack)))
		}
		h.logger.Error("logout failed", attrs...)
		httpx.InternalError(w)
		return
	}

	if sessionID != "" && h.service != nil {
		if err := h.service.RemoveSession(r.Context(), sessionID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
	}
	httpx.Message(w, http.StatusOK, "Logout successful")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	user, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Fail(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
			return
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Current user", user)
}

type csrfPayload struct {
	Token string `json:"token"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.InternalError(w)
		return
	}
	httpx.OK(w, http.StatusOK, "CSRF token", csrfPayload{Token: token})
}
