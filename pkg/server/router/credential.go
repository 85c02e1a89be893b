package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/openwalletlab/wallet-core/pkg/service/credential"
)

type CredentialRouter struct {
	service *credential.Service
}

func NewCredentialRouter(service *credential.Service) (*CredentialRouter, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	return &CredentialRouter{service: service}, nil
}

type ListCredentialsResponse struct {
	Credentials []credential.StoredCredential `json:"credentials"`
}

// ListCredentials returns every stored credential, oldest first.
func (cr CredentialRouter) ListCredentials(c *gin.Context) {
	credentials, err := cr.service.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not list credentials")
		return
	}
	c.IndentedJSON(http.StatusOK, ListCredentialsResponse{Credentials: credentials})
}

// GetCredential returns a single stored credential by ID.
func (cr CredentialRouter) GetCredential(c *gin.Context) {
	id := c.Param("id")
	stored, err := cr.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not get credential")
		return
	}
	if stored == nil {
		respondError(c, http.StatusNotFound, "credential not found")
		return
	}
	c.IndentedJSON(http.StatusOK, stored)
}

// DeleteCredential removes a stored credential. Deleting an unknown ID is a
// no-op and still returns 204.
func (cr CredentialRouter) DeleteCredential(c *gin.Context) {
	id := c.Param("id")
	if err := cr.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "could not delete credential")
		return
	}
	c.Status(http.StatusNoContent)
}
