package handlers

import (
	"net/http"

	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/gin-gonic/gin"
)

// ValidateImport checks an uploaded file without writing anything
func (h *Handler) ValidateImport(c *gin.Context) {
	entity, err := importer.ParseEntity(c.Param("entity"))
	if err != nil {
		respondError(c, err)
		return
	}
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "Failed to open uploaded file"})
		return
	}
	defer f.Close()

	res, err := h.Importer.Validate(c.Request.Context(), entity, fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":  len(res.Errors) == 0,
		"errors": res.Errors,
		"stats": gin.H{
			"would_import": res.Imported,
			"would_skip":   res.Skipped,
		},
	})
}
