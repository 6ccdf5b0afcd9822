package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ledgerly/auth"
	"github.com/ledgerly/auth/metrics/export/prometheus"
	"github.com/ledgerly/auth/middleware"
)

var validate = validator.New()

type server struct {
	engine *auth.Engine
	store  auth.CredentialStore
}

func newServer(engine *auth.Engine, store auth.CredentialStore) *server {
	return &server{engine: engine, store: store}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)

	// Coarse per-IP HTTP throttle in front of the engine's own
	// fixed-window limiters.
	lmt := tollbooth.NewLimiter(10, &limiter.ExpirableOptions{})
	lmt.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})

	pub := r.PathPrefix("/api/auth").Subrouter()
	pub.Handle("/signup", tollbooth.LimitFuncHandler(lmt, s.handleSignUp)).Methods("POST")
	pub.Handle("/signin", tollbooth.LimitFuncHandler(lmt, s.handleSignIn)).Methods("POST")
	pub.Handle("/request_password_reset", tollbooth.LimitFuncHandler(lmt, s.handleRequestPasswordReset)).Methods("POST")
	pub.Handle("/reset_password", tollbooth.LimitFuncHandler(lmt, s.handleResetPassword)).Methods("POST")

	priv := r.PathPrefix("/api/account").Subrouter()
	priv.Use(middleware.Guard(s.engine))
	priv.HandleFunc("/me", s.handleMe).Methods("GET")
	priv.HandleFunc("/change_password", s.handleChangePassword).Methods("POST")
	priv.HandleFunc("/request_email_verification", s.handleRequestEmailVerification).Methods("POST")
	priv.HandleFunc("/confirm_email", s.handleConfirmEmail).Methods("POST")
	priv.HandleFunc("/enable_2fa", s.handleEnableTwoFactor).Methods("POST")
	priv.HandleFunc("/confirm_2fa", s.handleConfirmTwoFactor).Methods("POST")
	priv.HandleFunc("/delete_account", s.handleDeleteAccount).Methods("POST")

	r.Handle("/metrics", prometheus.NewExporter(s.engine).Handler()).Methods("GET")

	return r
}

type signUpAttempt struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=100"`
	Password    string `json:"password" validate:"required,min=8,max=512"`
}

type signInAttempt struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type passwordResetConfirm struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=512"`
}

type passwordChange struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=512"`
}

type codeSubmission struct {
	Code string `json:"code" validate:"required"`
}

type accountDeletion struct {
	Password string `json:"password" validate:"required"`
}

type requestBody interface {
	signUpAttempt | signInAttempt | passwordResetRequest |
		passwordResetConfirm | passwordChange | codeSubmission | accountDeletion
}

func decodeValidBody[B requestBody](r *http.Request) (B, error) {
	var body B
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, err
	}
	if err := validate.Struct(body); err != nil {
		return body, err
	}
	return body, nil
}

type userResponse struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	DisplayName      string `json:"displayName"`
	EmailVerified    bool   `json:"emailVerified"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	JoinedAt         string `json:"joinedAt"`
}

type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		EmailVerified:    u.EmailVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		JoinedAt:         u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeEngineError maps engine errors onto HTTP statuses without
// leaking anything beyond the sentinel's own message.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrPasswordPolicy),
		errors.Is(err, auth.ErrPasswordReuse),
		errors.Is(err, auth.ErrCodeInvalid),
		errors.Is(err, auth.ErrCodeExpired):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrTwoFactorEnabled):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, auth.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func requestContext(r *http.Request) *http.Request {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return r.WithContext(auth.WithClientIP(r.Context(), ip))
}

func (s *server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[signUpAttempt](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	result, err := s.engine.SignUp(r.Context(), body.Email, body.DisplayName, body.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:  toUserResponse(result.User),
		Token: result.Token,
	})
}

func (s *server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[signInAttempt](r)
	if err != nil {
		// Malformed sign-in input gets the same generic answer as a
		// wrong password.
		writeEngineError(w, auth.ErrInvalidCredentials)
		return
	}
	r = requestContext(r)

	result, err := s.engine.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		User:  toUserResponse(result.User),
		Token: result.Token,
	})
}

func (s *server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[passwordResetRequest](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	if err := s.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[passwordResetConfirm](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	if err := s.engine.ResetPassword(r.Context(), body.Email, body.Code, body.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeEngineError(w, auth.ErrUnauthorized)
		return
	}

	user, err := s.store.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeEngineError(w, auth.ErrUnauthorized)
			return
		}
		writeEngineError(w, auth.ErrServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	body, err := decodeValidBody[passwordChange](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	if err := s.engine.ChangePassword(r.Context(), userID, body.OldPassword, body.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *server) handleRequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	r = requestContext(r)

	if err := s.engine.RequestEmailVerification(r.Context(), userID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	body, err := decodeValidBody[codeSubmission](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	if err := s.engine.ConfirmEmail(r.Context(), userID, body.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *server) handleEnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	r = requestContext(r)

	setup, err := s.engine.EnableTwoFactor(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":          setup.SecretBase32,
		"provisioningUri": setup.ProvisioningURI,
	})
}

func (s *server) handleConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	body, err := decodeValidBody[codeSubmission](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	if err := s.engine.ConfirmTwoFactor(r.Context(), userID, body.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	body, err := decodeValidBody[accountDeletion](r)
	if err != nil {
		writeEngineError(w, auth.ErrValidation)
		return
	}
	r = requestContext(r)

	if err := s.engine.DeleteAccount(r.Context(), userID, body.Password); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}
