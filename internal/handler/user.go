package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/avatar"
	"github.com/sakif/task-manager/internal/service"
)

// avatarField is the multipart form field carrying the upload.
const avatarField = "avatar"

// UserHandler serves account, session and profile routes.
//
// Routes behind auth.RequireAuth read the caller with auth.UserFromContext;
// the gate guarantees it is present.
type UserHandler struct {
	users          *service.UserService
	avatarMaxBytes int64
	logger         *slog.Logger
}

func NewUserHandler(users *service.UserService, avatarMaxBytes int64, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, avatarMaxBytes: avatarMaxBytes, logger: logger}
}

// HandleRegister creates an account.
//
// HTTP: POST /users → 201 {"user": {...}, "token": "..."}
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.users.Register(r.Context(), in)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin exchanges credentials for a new token.
//
// HTTP: POST /users/login → 200 {"user": {...}, "token": "..."}
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout ends the session the request authenticated with. Other
// sessions of the same user stay valid.
//
// HTTP: POST /users/logout → 200
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	token, _ := auth.TokenFromContext(r.Context())

	if err := h.users.Logout(r.Context(), user.ID, token); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleLogoutAll ends every session of the caller.
//
// HTTP: POST /users/logout/all → 200
func (h *UserHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.users.LogoutAll(r.Context(), user.ID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetProfile returns the caller's public profile.
//
// HTTP: GET /users/myprofile
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile applies a whitelisted partial update.
//
// HTTP: PATCH /users/myprofile
// BODY: any subset of {"name", "email", "password", "age"}
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var update map[string]json.RawMessage
	if err := decodeJSON(r, &update); err != nil {
		WriteError(w, err)
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user, update)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDeleteProfile deletes the caller's account and all of its tasks,
// and returns the deleted profile.
//
// HTTP: DELETE /users/myprofile
func (h *UserHandler) HandleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.users.DeleteAccount(r.Context(), user); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUploadAvatar stores a new profile picture.
//
// HTTP: POST /users/myprofile/avatar (multipart/form-data, field "avatar")
//
// The body is capped with http.MaxBytesReader, so an oversized upload
// fails while parsing instead of being buffered in full.
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	data, filename, err := h.readAvatar(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.users.SetAvatar(r.Context(), user.ID, filename, data); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *UserHandler) readAvatar(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	// Multipart framing adds a few hundred bytes on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.avatarMaxBytes+4096)

	if err := r.ParseMultipartForm(h.avatarMaxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", apperror.ValidationFailed(avatarField, "file is too large")
		}
		return nil, "", apperror.ValidationFailed(avatarField, "expected a multipart upload")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(avatarField)
	if err != nil {
		return nil, "", apperror.ValidationFailed(avatarField, "please upload an image")
	}
	defer file.Close()

	if header.Size > h.avatarMaxBytes {
		return nil, "", apperror.ValidationFailed(avatarField, "file is too large")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", apperror.ValidationFailed(avatarField, "could not read upload")
	}
	return data, header.Filename, nil
}

// HandleDeleteAvatar clears the caller's profile picture.
//
// HTTP: DELETE /users/myprofile/avatar
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.users.ClearAvatar(r.Context(), user.ID); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetAvatar serves any user's avatar. No authentication.
//
// HTTP: GET /users/{id}/avatar → image/png, or 404
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	img, err := h.users.GetAvatar(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", avatar.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		h.logger.Warn("failed to write avatar", slog.String("userID", id), slog.String("error", err.Error()))
	}
}
