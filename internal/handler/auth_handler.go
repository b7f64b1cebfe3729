/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"parley/internal/app/identity"
	"parley/internal/app/model"
	"parley/internal/app/store"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/pow"
	"parley/internal/pkg/randx"
	"parley/internal/pkg/req"
	"parley/internal/pkg/resp"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)
)

const (
	passwordMinLen = 6
	passwordMaxLen = 50
)

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func rejectIfLoggedIn(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := identity.FromContext(r.Context()).(identity.Authenticated); ok {
		resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
		return true
	}
	return false
}

// HandleRegister creates an account and returns a user token.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rejectIfLoggedIn(w, r) {
			return
		}

		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		username := strings.ToLower(strings.TrimSpace(input.Username))
		if !usernameRegex.MatchString(username) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}

		addr, err := mail.ParseAddress(strings.TrimSpace(input.Email))
		if err != nil || addr.Name != "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
			return
		}

		passwordLen := utf8.RuneCountInString(input.Password)
		if passwordLen < passwordMinLen || passwordLen > passwordMaxLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		user := &model.User{
			Username:     username,
			Email:        strings.ToLower(addr.Address),
			PasswordHash: string(hashedPassword),
			Status:       model.StatusOffline,
			Preferences:  model.DefaultPreferences(),
		}

		if err := deps.Store.CreateUser(r.Context(), user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				logx.Warn("registration conflict: username or email already exists", "username", username)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		token, err := identity.IssueUserToken(user, deps.Config.JWTSecret, deps.Config.UserTokenTTL)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		logx.Info("user registered", "user_id", user.ID)

		resp.RespondCreated(w, r, AuthResponse{Token: token, User: user})
	}
}

// HandleLogin verifies user credentials and issues a user token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rejectIfLoggedIn(w, r) {
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		username := strings.ToLower(strings.TrimSpace(input.Username))
		user, err := deps.Store.GetUserByUsername(r.Context(), username)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.Internal(err))
				return
			}
			logx.Warn("login: unknown username", "username", username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "username", username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, err := identity.IssueUserToken(user, deps.Config.JWTSecret, deps.Config.UserTokenTTL)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondSuccess(w, r, AuthResponse{Token: token, User: user})
	}
}

// HandleGetChallenge issues a proof-of-work challenge for guest admission.
func HandleGetChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenge, err := deps.Pow.NewChallenge(r.Context())
		if err != nil {
			logx.Error(err, "pow: failed to store challenge")
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInternal))
			return
		}

		resp.RespondSuccess(w, r, challenge)
	}
}

type SolveChallengeInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandleSolveChallenge exchanges a solved challenge for a single-use proof token.
func HandleSolveChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SolveChallengeInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Nonce == "" || input.Counter == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		token, err := deps.Pow.ValidateProof(r.Context(), input.Nonce, input.Counter)
		if errors.Is(err, pow.ErrInvalidProof) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}
		if err != nil {
			logx.Error(err, "pow: failed to validate proof")
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInternal))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token":     token,
			"expiresIn": int(pow.ProofTokenDuration.Seconds()),
		})
	}
}

type GuestInput struct {
	DisplayName string `json:"displayName"`
}

// HandleGuest issues a guest token. A blank display name is replaced with a
// generated one. When proof-of-work is enabled the request must carry an unused
// proof token.
func HandleGuest(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rejectIfLoggedIn(w, r) {
			return
		}

		var input GuestInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if strings.TrimSpace(input.DisplayName) == "" {
			generated, err := randx.GuestName()
			if err != nil {
				resp.RespondError(w, r, errs.Internal(err))
				return
			}
			input.DisplayName = generated
		}

		name, err := model.NormalizeGuestName(input.DisplayName)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		if deps.Pow.Enabled() {
			proof := pow.TokenFromRequest(r)
			if proof == "" {
				resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
				return
			}

			ok, err := deps.Pow.RedeemToken(r.Context(), proof)
			if err != nil {
				logx.Error(err, "pow: failed to redeem proof token")
				resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInternal))
				return
			}
			if !ok {
				resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
				return
			}
		}

		token, err := identity.IssueGuestToken(name, deps.Config.JWTSecret, deps.Config.GuestTokenTTL)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondCreated(w, r, map[string]any{
			"token": token,
			"guest": map[string]string{"type": string(model.SenderGuest), "displayName": name},
		})
	}
}
