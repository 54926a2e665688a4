package handlers

import (
	"log"
	"net/http"

	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/arnavshah/workload-api-go/pkg/models"
	"github.com/gin-gonic/gin"
)

// Import loads an uploaded CSV or XLSX file for an admin
func (h *Handler) Import(c *gin.Context) {
	res, ok := h.importUpload(c)
	if !ok {
		return
	}
	audit(c, "imported %s: %d imported, %d skipped, %d rejected", c.Param("entity"), res.Imported, res.Skipped, len(res.Errors))
	c.JSON(http.StatusOK, res)
}

// IntegrationImport loads an uploaded file for an integration key and records
// usage. Rejected uploads count against the daily limit as well.
func (h *Handler) IntegrationImport(c *gin.Context) {
	res, ok := h.importUpload(c)
	ik := integrationKeyFrom(c)
	if ik == nil {
		if ok {
			c.JSON(http.StatusOK, res)
		}
		return
	}

	imported, rejected := 0, 0
	if ok {
		imported, rejected = res.Imported, len(res.Errors)
	}
	if err := h.Store.RecordUsage(c.Request.Context(), ik.ID, imported, rejected); err != nil {
		if !ok {
			log.Printf("[%s] recording usage for key %d: %v", requestID(c), ik.ID, err)
			return
		}
		respondError(c, err)
		return
	}
	if ok {
		c.JSON(http.StatusOK, res)
	}
}

func (h *Handler) importUpload(c *gin.Context) (*models.ImportResult, bool) {
	entity, err := importer.ParseEntity(c.Param("entity"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open uploaded file"})
		return nil, false
	}
	defer f.Close()

	res, err := h.Importer.Import(c.Request.Context(), entity, fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if res.Imported > 0 {
		h.Stats.Invalidate(c.Request.Context())
	}
	return res, true
}
