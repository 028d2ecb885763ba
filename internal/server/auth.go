package server

import (
	"errors"
	"log"
	"net/http"

	"luxe-booking/internal/auth"
	"luxe-booking/internal/database"
	"luxe-booking/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"omitempty,min=2"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	auth.Token
	User models.User `json:"user"`
}

func credentialMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Email":
			return "Please enter a valid email address."
		case "Password":
			return "Password must be between 8 and 72 characters."
		case "FullName":
			return "Full name must be at least 2 characters."
		}
	}
	return "Invalid request payload"
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, credentialMessage(err))
		return
	}

	_, err := s.db.FindUserByEmail(r.Context(), req.Email)
	if err == nil {
		writeError(w, http.StatusConflict, "An account with this email already exists.")
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		log.Printf("Error looking up user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, err := s.db.EnsureUser(r.Context(), auth.NewUID(), req.Email, hash)
	if err != nil {
		log.Printf("Error creating user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if req.FullName != "" {
		if _, err := s.db.UpdateProfile(r.Context(), user.ID, models.ProfileUpdate{FullName: &req.FullName}); err != nil {
			log.Printf("Error saving name for user %s: %v", user.ID, err)
		}
	}

	tok, err := s.issuer.Issue(user.ExternalUID, user.Email)
	if err != nil {
		log.Printf("Error issuing token: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: tok, User: user})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, credentialMessage(err))
		return
	}

	user, err := s.db.FindUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("Error looking up user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if err != nil || user.PasswordHash == "" || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	tok, err := s.issuer.Issue(user.ExternalUID, user.Email)
	if err != nil {
		log.Printf("Error issuing token: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: user})
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := s.ownerOrError(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"uid":     claims.UID(),
		"email":   claims.Email,
		"ownerId": id.String(),
	})
}
